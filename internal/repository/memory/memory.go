// Package memory はテストおよびローカル検証用のインメモリリポジトリを提供する。
// PostgreSQL実装と同じ不変条件（登録の直列化、未使用リセット要求は1件、条件付き消費）を
// 単一のミューテックスで保証する。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/mailadmin/internal/model"
	"github.com/hitoshi/mailadmin/internal/repository"
)

// Store はユーザーとリセット要求を保持するインメモリストア。
// Users、PasswordResetsが返すリポジトリはこのストアを共有する。
type Store struct {
	mu     sync.Mutex
	users  map[string]*model.User
	resets map[string]*model.PasswordReset
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users:  make(map[string]*model.User),
		resets: make(map[string]*model.PasswordReset),
	}
}

// UserRepo はStore上のUserRepository実装。
type UserRepo struct {
	s *Store
}

// PasswordResetRepo はStore上のPasswordResetRepository実装。
type PasswordResetRepo struct {
	s *Store
}

var (
	_ repository.UserRepository          = (*UserRepo)(nil)
	_ repository.PasswordResetRepository = (*PasswordResetRepo)(nil)
)

// Users はストアを共有するUserRepoを返す。
func (s *Store) Users() *UserRepo {
	return &UserRepo{s: s}
}

// PasswordResets はストアを共有するPasswordResetRepoを返す。
func (s *Store) PasswordResets() *PasswordResetRepo {
	return &PasswordResetRepo{s: s}
}

// FindByID は指定IDのユーザーを取得する。
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// CountRegistered はパスワード設定済みユーザーの件数を返す。
func (r *UserRepo) CountRegistered(ctx context.Context) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countRegisteredLocked(), nil
}

func (s *Store) countRegisteredLocked() int {
	n := 0
	for _, u := range s.users {
		if u.IsRegistered() {
			n++
		}
	}
	return n
}

// RegisterFirst は登録済みユーザーが0件の場合に限りユーザーを作成する。
func (r *UserRepo) RegisterFirst(ctx context.Context, user *model.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.countRegisteredLocked() > 0 {
		return repository.ErrRegistrationClosed
	}
	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// PutUser はユーザーを直接登録する。未登録ユーザーなど、登録フロー外の状態を用意するために使う。
func (s *Store) PutUser(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
}

// DeleteUser はユーザーと関連するリセット要求を削除する。
func (s *Store) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	for rid, r := range s.resets {
		if r.UserID == id {
			delete(s.resets, rid)
		}
	}
}

// Replace は既存の未使用リセット要求を無効化し、新しいリセット要求を作成する。
func (r *PasswordResetRepo) Replace(ctx context.Context, reset *model.PasswordReset) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.resets {
		if rec.UserID == reset.UserID && !rec.Used {
			rec.Used = true
		}
	}
	cp := *reset
	cp.Used = false
	s.resets[reset.ID] = &cp
	return nil
}

// FindLatestActive は指定時刻で有効な最新のリセット要求を取得する。
func (r *PasswordResetRepo) FindLatestActive(ctx context.Context, userID string, now time.Time) (*model.PasswordReset, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*model.PasswordReset
	for _, rec := range s.resets {
		if rec.UserID == userID && rec.IsUsable(now) {
			active = append(active, rec)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	cp := *active[0]
	return &cp, nil
}

// FindByID は指定IDのリセット要求を取得する。
func (r *PasswordResetRepo) FindByID(ctx context.Context, id string) (*model.PasswordReset, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.resets[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Consume はリセット要求の使用済み化とパスワード更新を不可分に行う。
func (r *PasswordResetRepo) Consume(ctx context.Context, resetID, userID, passwordHash string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.resets[resetID]
	if !ok || rec.Used || rec.UserID != userID {
		return repository.ErrResetAlreadyUsed
	}
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	rec.Used = true
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

// DeleteStale は保持期間を過ぎた使用済み・期限切れのリセット要求を削除する。
func (r *PasswordResetRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.resets {
		if rec.CreatedAt.Before(before) && (rec.Used || rec.ExpiresAt.Before(before)) {
			delete(s.resets, id)
			deleted++
		}
	}
	return deleted, nil
}

// Resets は指定ユーザーのリセット要求を作成日時順で返す。
func (s *Store) Resets(userID string) []model.PasswordReset {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.PasswordReset
	for _, r := range s.resets {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
