package migration

import (
	"context"

	"github.com/smallbiznis/banca/internal/config"
	dashboarddomain "github.com/smallbiznis/banca/internal/dashboard/domain"
	"github.com/smallbiznis/banca/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, users dashboarddomain.Service, log *zap.Logger) error {
		if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}
		return seed.EnsureAdmin(context.Background(), users, cfg, log.Named("seed"))
	}),
)
