// Command rewindd runs the order-fulfillment orchestration service: the
// rewind engine with a durable history store, activity workers, and the
// HTTP front door for submitting orders and querying their status.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/rewind"
	"github.com/petrijr/rewind/internal/config"
	"github.com/petrijr/rewind/orderflow"
	"github.com/petrijr/rewind/pkg/httpapi"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("engine setup failed")
	}
	defer cleanup()

	paymentDB, err := sql.Open("pgx", cfg.Payment.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open payment database")
	}
	defer paymentDB.Close()
	if err := paymentDB.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("payment database unreachable")
	}

	publisher, err := orderflow.NewNATSPublisher(ctx, cfg.Queue.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("vendor queue setup failed")
	}
	defer publisher.Close()

	activities := &orderflow.Activities{
		Payments:      orderflow.NewSQLPaymentStore(paymentDB),
		Queue:         publisher,
		Mail:          orderflow.NewRESTMailer(cfg.Mail.Endpoint, cfg.Mail.APIKey),
		SenderAddress: cfg.Mail.Sender,
		SenderName:    cfg.Mail.SenderName,
	}
	if err := activities.Register(eng); err != nil {
		log.Fatal().Err(err).Msg("workflow registration failed")
	}

	// Re-resume anything that was mid-flight when the last process died,
	// before accepting new work.
	recovered, err := rewind.RecoverPendingInstances(ctx, eng)
	if err != nil {
		log.Fatal().Err(err).Msg("instance recovery failed")
	}
	if recovered > 0 {
		log.Info().Int("count", recovered).Msg("recovered pending instances")
	}

	runner := rewind.NewRunner(eng)
	if err := runner.StartWorkers(ctx, cfg.Workers); err != nil {
		log.Fatal().Err(err).Msg("worker startup failed")
	}
	defer runner.Stop()

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.New(eng, log).Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// buildEngine opens the configured history store backend.
func buildEngine(ctx context.Context, cfg *config.Config) (rewind.Engine, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case "memory":
		return rewind.NewInMemoryEngine(), noop, nil

	case "sqlite":
		db, err := sql.Open("sqlite", "file:"+cfg.Store.SQLitePath+"?_journal=WAL")
		if err != nil {
			return nil, noop, err
		}
		eng, err := rewind.NewSQLiteEngine(db)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		return eng, func() { db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, noop, err
		}
		return rewind.NewRedisEngine(client), func() { client.Close() }, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Store.MongoURI))
		if err != nil {
			return nil, noop, err
		}
		return rewind.NewMongoEngine(client, cfg.Store.MongoDB), func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(disconnectCtx)
		}, nil
	}

	return nil, noop, errors.New("unknown store driver: " + cfg.Store.Driver)
}
