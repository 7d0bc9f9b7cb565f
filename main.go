package main

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/leadinbox/inbox-push/models"
	"github.com/leadinbox/inbox-push/routes"
	services "github.com/leadinbox/inbox-push/services"
	"github.com/leadinbox/inbox-push/subscriber"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	// A missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	var config models.Config
	config = config.New()

	err := envconfig.Process("", &config)
	if err != nil {
		log.Fatal(err.Error())
	}
	config.Verify(subscriber.DecodeKey)

	var db *gorm.DB
	var dbErr error

	switch strings.ToLower(config.DbType) {
	case "sqlite":
		db, dbErr = gorm.Open(sqlite.Open(config.DbDSN), &gorm.Config{})
	case "postgres":
		db, dbErr = gorm.Open(postgres.Open(config.DbDSN), &gorm.Config{})
	case "mysql":
		db, dbErr = gorm.Open(mysql.Open(config.DbDSN), &gorm.Config{})
	default:
		log.Fatalf("Unknown DbType '%s'", config.DbType)
	}
	if dbErr != nil {
		log.Fatalf("Failed to connect to database: %s", dbErr)
	}

	// Migrate the schema
	if err := db.AutoMigrate(&models.Tenant{}); err != nil {
		log.Fatalf("Failed to run database migrations for Tenant model: %s", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		log.Fatalf("Failed to run database migrations for User model: %s", err)
	}
	if err := db.AutoMigrate(&models.PushSubscription{}); err != nil {
		log.Fatalf("Failed to run database migrations for PushSubscription model: %s", err)
	}
	if err := db.AutoMigrate(&models.DevicePreference{}); err != nil {
		log.Fatalf("Failed to run database migrations for DevicePreference model: %s", err)
	}

	// Delete stale push subscriptions now, then daily
	userManager := services.NewUserManager(db, &config)
	if err := userManager.CleanupSubscriptions(); err != nil {
		log.Printf("Could not delete stale push subscriptions: %s", err.Error())
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		if err := userManager.CleanupSubscriptions(); err != nil {
			log.Printf("Could not delete stale push subscriptions: %s", err.Error())
		}
	}); err != nil {
		log.Fatalf("Could not schedule subscriptions cleanup: %s", err)
	}
	scheduler.Start()

	startServer(&config, routes.New(&config, db))
}
