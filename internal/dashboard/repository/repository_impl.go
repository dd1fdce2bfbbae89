package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/banca/internal/dashboard/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, username, name, password_hash, allowed_routes, active, created_at, updated_at`

func (r *repo) CreateUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO dashboard_users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Name,
		user.PasswordHash,
		user.AllowedRoutes,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) UpdateUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`UPDATE dashboard_users
		 SET name = ?, password_hash = ?, allowed_routes = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.PasswordHash,
		user.AllowedRoutes,
		user.Active,
		user.UpdatedAt,
		user.ID,
	).Error
}

func (r *repo) DeleteUser(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(`DELETE FROM dashboard_users WHERE id = ?`, id).Error
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	return r.findUser(ctx, db, `SELECT `+userColumns+` FROM dashboard_users WHERE id = ?`, id)
}

func (r *repo) FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return r.findUser(ctx, db, `SELECT `+userColumns+` FROM dashboard_users WHERE username = ?`, username)
}

func (r *repo) findUser(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&user).Error; err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var users []domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT ` + userColumns + ` FROM dashboard_users ORDER BY username ASC`,
	).Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM dashboard_users`).Scan(&count).Error
	return count, err
}

func (r *repo) CreateToken(ctx context.Context, db *gorm.DB, token *domain.Token) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO auth_tokens (id, token_key, user_id, user_agent, ip_address, active, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.TokenKey,
		token.UserID,
		token.UserAgent,
		token.IPAddress,
		token.Active,
		token.CreatedAt,
		token.ExpiresAt,
	).Error
}

func (r *repo) FindTokenByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Token, error) {
	var token domain.Token
	err := db.WithContext(ctx).Raw(
		`SELECT id, token_key, user_id, user_agent, ip_address, active, created_at, expires_at
		 FROM auth_tokens WHERE token_key = ?`,
		key,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.ID == 0 {
		return nil, nil
	}
	return &token, nil
}

func (r *repo) DeactivateToken(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Exec(`UPDATE auth_tokens SET active = ? WHERE token_key = ?`, false, key).Error
}

func (r *repo) DeactivateUserTokens(ctx context.Context, db *gorm.DB, userID int64) error {
	return db.WithContext(ctx).Exec(`UPDATE auth_tokens SET active = ? WHERE user_id = ?`, false, userID).Error
}

func (r *repo) DeleteExpiredTokens(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM auth_tokens WHERE expires_at < ?`, before)
	return res.RowsAffected, res.Error
}
