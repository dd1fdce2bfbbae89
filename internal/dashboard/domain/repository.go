package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	CreateUser(ctx context.Context, db *gorm.DB, user *User) error
	UpdateUser(ctx context.Context, db *gorm.DB, user *User) error
	DeleteUser(ctx context.Context, db *gorm.DB, id int64) error
	FindUserByID(ctx context.Context, db *gorm.DB, id int64) (*User, error)
	FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*User, error)
	ListUsers(ctx context.Context, db *gorm.DB) ([]User, error)
	CountUsers(ctx context.Context, db *gorm.DB) (int64, error)

	CreateToken(ctx context.Context, db *gorm.DB, token *Token) error
	FindTokenByKey(ctx context.Context, db *gorm.DB, key string) (*Token, error)
	DeactivateToken(ctx context.Context, db *gorm.DB, key string) error
	DeactivateUserTokens(ctx context.Context, db *gorm.DB, userID int64) error
	DeleteExpiredTokens(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}
