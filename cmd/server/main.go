package main // Entry point of the portal API

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/agency-portal/internal/config"
	"github.com/iliyamo/agency-portal/internal/database"
	"github.com/iliyamo/agency-portal/internal/queue"
	"github.com/iliyamo/agency-portal/internal/router"
	"github.com/iliyamo/agency-portal/internal/service"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	var pub service.Publisher = service.NopPublisher{}
	if cfg.BrokerURL != "" {
		pub = service.NewAMQPPublisher(cfg.BrokerURL)
		if cfg.ConsumerEnabled {
			go func() {
				if err := queue.StartActivityConsumer(ctx, cfg.BrokerURL, cfg.ActivityLogDir); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("activity-consumer: stopped: %v", err)
				}
			}()
		}
	} else {
		log.Printf("rabbitmq: RABBITMQ_URL not set; activity events are not published")
	}

	e, auth, err := router.New(cfg, db, rdb, pub)
	if err != nil {
		log.Fatalf("router: %v", err)
	}
	if created, err := auth.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("seed admin: %v", err)
	} else if created {
		log.Printf("seeded admin account %s", cfg.AdminEmail)
	}

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, db=%s)", addr, cfg.Env, cfg.DBDriver)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
