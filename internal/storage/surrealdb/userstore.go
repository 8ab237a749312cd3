package surrealdb

import (
	"context"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// UserStore implements interfaces.UserStore using SurrealDB.
type UserStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *surrealdb.DB, logger *common.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

func (s *UserStore) GetUser(ctx context.Context, userID string) (*models.InternalUser, error) {
	rid := surrealmodels.NewRecordID("user", userID)
	user, err := surrealdb.Select[models.InternalUser](ctx, s.db, rid)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.UserStore.GetUser", err)
	}
	if user == nil {
		return nil, nil
	}
	user.UserID = userID
	return user, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.InternalUser, error) {
	sql := "SELECT * FROM user WHERE email = $email LIMIT 1"
	vars := map[string]any{"email": email}

	results, err := surrealdb.Query[[]models.InternalUser](ctx, s.db, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.UserStore.GetUserByEmail", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	u := (*results)[0].Result[0]
	return &u, nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *models.InternalUser) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.ModifiedAt = now

	sql := `UPDATE $rid MERGE {
		email: $email, password_hash: $password_hash, role: $role,
		created_at: $created_at, modified_at: $modified_at
	}`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("user", user.UserID),
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"role":          user.Role,
		"created_at":    user.CreatedAt,
		"modified_at":   user.ModifiedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.UserStore.SaveUser", err)
	}
	return nil
}

func (s *UserStore) Close() error { return nil }

var _ interfaces.UserStore = (*UserStore)(nil)
