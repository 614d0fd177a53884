package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	categorydomain "github.com/smallbiznis/procura/internal/category/domain"
	itemdomain "github.com/smallbiznis/procura/internal/item/domain"
	notificationdomain "github.com/smallbiznis/procura/internal/notification/domain"
	organizationdomain "github.com/smallbiznis/procura/internal/organization/domain"
	requisitiondomain "github.com/smallbiznis/procura/internal/requisition/domain"
	sequencedomain "github.com/smallbiznis/procura/internal/sequence/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&organizationdomain.Organization{},
		&organizationdomain.User{},
		&organizationdomain.OrganizationMember{},
		&sequencedomain.Counter{},
		&categorydomain.Category{},
		&itemdomain.Item{},
		&requisitiondomain.Requisition{},
		&notificationdomain.Notification{},
		&notificationdomain.EmailJob{},
		&auditdomain.AuditLog{},
	}
}

// Migrate applies the versioned SQL migrations on Postgres and falls back to
// gorm AutoMigrate for the development dialects.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

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
	// migrator.Close would close the shared *sql.DB.

	return nil
}
