package main

import (
	"context"
	"log/slog"

	"avaremind-backend/lib/configutil"
	"avaremind-backend/lib/restyutil"
	"avaremind-backend/lib/scrapers/ava/driver"
	"avaremind-backend/lib/serviceutil"
	"avaremind-backend/lib/telemetry"
	"avaremind-backend/services/reminder"
	"avaremind-backend/services/reminder/store"
)

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[DaemonConfig]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	telemetry.InitSlog(config.Verbose)
	if config.Verbose {
		output, err := restyutil.NewFilesystemOutput(".dev/resty/ava")
		if err != nil {
			serviceutil.Fatal("failed to prepare page dump directory", err)
		}
		driver.SetInstrumentOutput(output)
	}

	tel, err := telemetry.SetupFromEnv(ctx, "avaremindd")
	if err != nil {
		serviceutil.Fatal("failed to set up telemetry", err)
	}
	defer tel.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	slog.Info("opening database...", "driver", config.Database.Driver)
	db, err := config.Database.Open()
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		serviceutil.Fatal("failed to migrate database", err)
	}

	renderer, err := reminder.NewTemplateRenderer()
	if err != nil {
		serviceutil.Fatal("failed to parse email templates", err)
	}
	mailer := reminder.NewMailer(
		reminder.NewSmtpSender(config.Smtp),
		renderer,
		config.PublicBaseUrl,
	)

	service := reminder.NewService(st, mailer, reminder.Options{
		Portal:        config.Portal,
		PublicBaseUrl: config.PublicBaseUrl,
		PoolCapacity:  config.PoolCapacity,
	})
	service.StartDaemons(ctx)

	slog.Info("avaremindd running", "portal", config.Portal.BaseUrl)
	<-ctx.Done()
}
