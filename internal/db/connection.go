package db

import (
	"fmt"
	"log"
	"os"

	"github.com/convoscope/backend/internal/config"
	"github.com/convoscope/backend/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect initializes the database connection. sqlite is the default since
// the service runs locally; set DB_DRIVER=postgres with the usual DB_* env
// vars to run against a server.
func Connect(cfg *config.Config) {
	var err error

	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			os.Getenv("DB_HOST"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_SSLMODE"),
		)
		DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})
	case "sqlite":
		DB, err = gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})
	default:
		log.Fatalf("Unknown DB_DRIVER %q (want sqlite or postgres)", cfg.DBDriver)
	}

	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	log.Printf("Database connected (%s)", cfg.DBDriver)
}

// AutoMigrate runs database migrations
func AutoMigrate() {
	err := DB.AutoMigrate(&models.Archive{})
	if err != nil {
		log.Printf("Archive migration failed: %v", err)
		return
	}

	err = DB.AutoMigrate(&models.AnalysisJob{})
	if err != nil {
		log.Printf("AnalysisJob migration failed: %v", err)
		return
	}

	err = DB.AutoMigrate(&models.CacheEntry{})
	if err != nil {
		log.Printf("CacheEntry migration failed: %v", err)
		return
	}

	log.Println("All database migrations completed successfully")
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
