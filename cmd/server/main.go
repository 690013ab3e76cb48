package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"
	"trendwatch-backend/lib/browser"
	"trendwatch-backend/lib/scrapers/copilot"
	"trendwatch-backend/lib/telemetry"
	"trendwatch-backend/lib/util/serviceutil"
	"trendwatch-backend/lib/util/sqliteutil"
	"trendwatch-backend/services/trends"
	"trendwatch-backend/services/trends/db"
)

var configPath = flag.String("config", "config.json5", "path to the config file")

func main() {
	flag.Parse()
	config := MustLoadConfig(*configPath)

	telemetry.InitSlog(config.Debug)
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "trendwatch-backend")
	if os.IsNotExist(err) {
		slog.Warn("no telemetry.json5 found, exporters disabled")
	} else if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	} else {
		defer tel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)
	}

	sqlDB, err := sqliteutil.OpenDB(db.Schema, config.DatabasePath)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	defer sqlDB.Close()

	// the whole service is useless without a browser, so abort loudly
	runtime, err := browser.Start(browser.Options{Headless: !config.Headful})
	if err != nil {
		serviceutil.Fatal("failed to start browser runtime", err)
	}
	defer runtime.Close()

	creds := copilot.Credentials{
		Email:    os.Getenv("COPILOT_EMAIL"),
		Password: os.Getenv("COPILOT_PASSWORD"),
	}
	if creds.Email == "" || creds.Password == "" {
		serviceutil.Fatal(
			"missing credentials",
			errors.New("COPILOT_EMAIL and COPILOT_PASSWORD must be set"),
		)
	}

	sessions := copilot.NewSessionManager(runtime, creds, copilot.Options{
		BaseUrl:       config.BaseUrl,
		MaxSessionAge: time.Duration(config.SessionMaxAgeMinutes) * time.Minute,
	})
	defer sessions.Close()
	sessions.StartRefreshDaemon(ctx)

	svc := trends.NewService(sessions, sqlDB)
	mux := http.NewServeMux()
	trends.RegisterRoutes(mux, svc)

	serviceutil.StartHttpServer(config.Port, mux)
}
