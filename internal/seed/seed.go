// Package seed bootstraps the first dashboard account.
package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/banca/internal/config"
	"go.uber.org/zap"
)

const defaultAdminUsername = "admin"

// AdminBootstrapper creates an all-routes user when the user table is empty.
type AdminBootstrapper interface {
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)
}

// EnsureAdmin seeds the bootstrap admin from ADMIN_USERNAME/ADMIN_PASSWORD.
// Without a password nothing is created.
func EnsureAdmin(ctx context.Context, admins AdminBootstrapper, cfg config.Config, log *zap.Logger) error {
	if admins == nil {
		return errors.New("seed admin bootstrapper is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	password := cfg.Auth.BootstrapPassword
	if password == "" {
		log.Debug("bootstrap admin skipped, ADMIN_PASSWORD not set")
		return nil
	}
	username := strings.TrimSpace(cfg.Auth.BootstrapUsername)
	if username == "" {
		username = defaultAdminUsername
	}

	created, err := admins.EnsureAdmin(ctx, username, password)
	if err != nil {
		return err
	}
	if created {
		log.Info("bootstrap admin seeded", zap.String("username", username))
	}
	return nil
}
