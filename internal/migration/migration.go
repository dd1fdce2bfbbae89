package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
	dashboarddomain "github.com/smallbiznis/banca/internal/dashboard/domain"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	paymentdomain "github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/statuslog"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded SQL migrations on postgres.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns, in creation order.
func Models() []any {
	return []any{
		&catalogdomain.Item{},
		&catalogdomain.CategoryOrder{},
		&orderdomain.Order{},
		&orderdomain.Line{},
		&paymentdomain.PaymentRecord{},
		&paymentdomain.Notification{},
		&statuslog.Entry{},
		&dashboarddomain.User{},
		&dashboarddomain.Token{},
	}
}

// AutoMigrate builds the schema from the models for dialects without
// embedded SQL.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Apply picks the migration strategy for the configured database.
func Apply(conn *gorm.DB, dbType string) error {
	if dbType != "postgres" {
		return AutoMigrate(conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
