package database

import (
	"fmt"
	"log"
	"strings"

	"sports-prediction/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// sqlitePrefix selects the embedded SQLite driver for local development,
// e.g. "sqlite:dev.db".
const sqlitePrefix = "sqlite:"

// Connect establishes a connection to the database
func Connect(dsn string) error {
	var err error

	DB, err = gorm.Open(dialector(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established successfully")
	return nil
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return postgres.Open(dsn)
}

// Models lists every table owned by the service, in migration order
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.AdminUser{},
		&models.PredictionEvent{},
		&models.PredictionScore{},
		&models.Bet{},
	}
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate() error {
	for _, model := range Models() {
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
