package commands

import (
	"context"
	"fmt"
	"os"

	"avaremind-backend/lib/configutil"
	"avaremind-backend/lib/serviceutil"
	"avaremind-backend/services/reminder"
	"avaremind-backend/services/reminder/store"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var rootCmd = &cobra.Command{
	Use:   "avaremind-cli",
	Short: "avaremind-cli is an admin CLI for the AVA reminder backend.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	Dsn    string `json:"dsn"`
}

type Config struct {
	Portal        reminder.PortalConfig `json:"portal"`
	Smtp          reminder.SmtpConfig   `json:"smtp"`
	Database      DatabaseConfig        `json:"database"`
	PublicBaseUrl string                `json:"public_base_url"`
	PoolCapacity  int                   `json:"pool_capacity"`
}

func readConfig() Config {
	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return config
}

func openStore(config Config) *store.Store {
	var db *gorm.DB
	var err error
	switch config.Database.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(config.Database.Dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(config.Database.Dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	default:
		serviceutil.Fatal("failed to open database",
			fmt.Errorf("unknown database driver %q", config.Database.Driver))
	}
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	return store.New(db)
}

func buildService(config Config, st *store.Store) *reminder.Service {
	renderer, err := reminder.NewTemplateRenderer()
	if err != nil {
		serviceutil.Fatal("failed to parse email templates", err)
	}
	mailer := reminder.NewMailer(
		reminder.NewSmtpSender(config.Smtp),
		renderer,
		config.PublicBaseUrl,
	)
	return reminder.NewService(st, mailer, reminder.Options{
		Portal:        config.Portal,
		PublicBaseUrl: config.PublicBaseUrl,
		PoolCapacity:  config.PoolCapacity,
	})
}
