package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/mailadmin/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, model.NewValidationError("Please provide all required fields."))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if body.Success {
		t.Error("success should be false")
	}
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if body.Error != "Please provide all required fields." {
		t.Errorf("error = %q, want %q", body.Error, "Please provide all required fields.")
	}
}

// TestWriteErrorResponse_DifferentStatusCodes はAPIErrorのステータスがそのまま使われることを検証する。
func TestWriteErrorResponse_DifferentStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		apiErr     *model.APIError
		statusCode int
		code       string
	}{
		{"NoToken", model.NewNoTokenError(), http.StatusUnauthorized, "NO_TOKEN"},
		{"TokenExpired", model.NewTokenExpiredError(), http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"Forbidden", model.NewForbiddenError(), http.StatusForbidden, "FORBIDDEN"},
		{"RegistrationClosed", model.NewRegistrationClosedError(), http.StatusForbidden, "REGISTRATION_CLOSED"},
		{"EmailTaken", model.NewEmailTakenError(), http.StatusConflict, "EMAIL_TAKEN"},
		{"RateLimited", model.NewRateLimitedError(), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"Internal", model.NewInternalError(), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteErrorResponse(w, tt.apiErr)

			resp := w.Result()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.statusCode)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}

			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if body.Error == "" {
		t.Error("error message should not be empty")
	}
}

// TestErrorResponseBody_AllFieldsPresent は全フィールドがJSONレスポンスに含まれることを検証する。
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, model.NewOTPInvalidError())

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("field %q is missing from response", field)
		}
	}
	if len(raw) != 3 {
		t.Errorf("unexpected fields in response: %v", raw)
	}
}
