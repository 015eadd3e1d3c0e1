package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/hitoshi/mailadmin/internal/model"
)

// パスワードの長さ制限。bcryptは72バイトを超える入力を扱えない。
const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// validateRegister は登録入力を検証し、全ての違反をまとめたValidationErrorを返す。
func validateRegister(in RegisterInput) error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name,
			validation.Required.Error("Name must be at least 2 characters."),
			validation.Length(2, 100).Error("Name must be between 2 and 100 characters."),
		),
		validation.Field(&in.Email,
			validation.Required.Error("Please provide a valid email."),
			is.Email.Error("Please provide a valid email."),
		),
		validation.Field(&in.Password, passwordRules()...),
		validation.Field(&in.ConfirmPassword,
			validation.By(stringEquals(in.Password, "Passwords do not match.")),
		),
	)
	return toValidationError(err, "name", "email", "password", "confirmPassword")
}

// validateNewPassword はパスワード再設定時の入力を検証する。
func validateNewPassword(password, confirm string) error {
	in := struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}{password, confirm}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Password, passwordRules()...),
		validation.Field(&in.ConfirmPassword,
			validation.By(stringEquals(in.Password, "Passwords do not match.")),
		),
	)
	return toValidationError(err, "password", "confirmPassword")
}

func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Password must be at least 8 characters."),
		validation.Length(minPasswordLength, maxPasswordLength).Error("Password must be between 8 and 72 characters."),
	}
}

func stringEquals(want, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != want {
			return errors.New(message)
		}
		return nil
	}
}

// toValidationError はozzo-validationのエラーをフィールド順に連結してValidationErrorに変換する。
func toValidationError(err error, order ...string) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return model.NewValidationError(err.Error())
	}

	messages := make([]string, 0, len(errs))
	for _, field := range order {
		if fe, ok := errs[field]; ok && fe != nil {
			messages = append(messages, fe.Error())
		}
	}
	return model.NewValidationError(strings.Join(messages, " "))
}
