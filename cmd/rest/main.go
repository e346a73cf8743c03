package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"zero-entropy-be/internal/bootstrap"
	"zero-entropy-be/internal/config"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/internal/server"
	"zero-entropy-be/internal/tracer"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	// 2. Initialize Tracer (off unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(cfg.Tracing, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database when one is configured
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := bootstrap.OpenDatabase(cfg.Database, sysLogger)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg, sysLogger, version)
	if err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}
	defer container.Close()

	// 5. Start Background Services
	if err := container.Start(ctx); err != nil {
		log.Fatalf("Failed to start background services: %v", err)
	}

	// 6. Run Server until a signal arrives
	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
