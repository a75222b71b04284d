package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/sequence-engine/internal/api"
	"github.com/ignite/sequence-engine/internal/config"
	"github.com/ignite/sequence-engine/internal/esp"
	"github.com/ignite/sequence-engine/internal/pkg/distlock"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/repository/memory"
	"github.com/ignite/sequence-engine/internal/repository/postgres"
	"github.com/ignite/sequence-engine/internal/repository/rediscache"
	"github.com/ignite/sequence-engine/internal/service/enrollment"
	"github.com/ignite/sequence-engine/internal/service/reconcile"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"github.com/ignite/sequence-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// stores groups the repositories for one storage backend.
type stores struct {
	enrollments interface {
		sequence.EnrollmentRepository
		reconcile.EnrollmentRepository
		enrollment.Repository
	}
	events interface {
		reconcile.EventRepository
		enrollment.EventReader
	}
	sequences sequence.SequenceRepository
	content   sequence.ContentResolver
	cache     *rediscache.SequenceCache
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config check FAILED: %v", err)
	}

	appLog := logger.New(os.Stdout, logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Redact())
	logger.SetDefault(appLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *sql.DB
	if cfg.Database.Driver == "postgres" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Failed to connect to database at %s: %v", extractHost(cfg.Database.URL), err)
		}
		defer db.Close()
		log.Printf("Connected to PostgreSQL at %s", extractHost(cfg.Database.URL))
	} else {
		log.Println("Using in-memory storage; state is lost on restart")
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable, continuing without cache: %v", err)
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			log.Printf("Connected to Redis at %s", opts.Addr)
		}
	}

	st, err := newStores(db, rdb, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	sender, err := newSender(ctx, cfg.ESP)
	if err != nil {
		log.Fatalf("Failed to initialize email provider: %v", err)
	}
	log.Printf("Email provider: %s", cfg.ESP.Provider)

	scheduler := sequence.NewScheduler(st.enrollments, st.sequences,
		sequence.NewDispatcher(sender, st.content),
		sequence.Options{
			Concurrency: cfg.Scheduler.Concurrency,
			ClaimTTL:    cfg.Scheduler.ClaimTTL(),
			Logger:      appLog,
		})
	reconciler := reconcile.NewReconciler(st.events, st.enrollments, appLog)

	var health *api.HealthChecker
	if db != nil || rdb != nil {
		health = api.NewHealthChecker(db, rdb)
	}

	deps := api.Deps{
		Scheduler:     scheduler,
		Reconciler:    reconciler,
		Enrollments:   enrollment.NewService(st.enrollments, st.events),
		Health:        health,
		TriggerSecret: cfg.Trigger.Secret,
		WebhookSecret: cfg.Webhook.SigningSecret,
		Logger:        appLog,
	}
	if st.cache != nil {
		deps.SequenceCache = st.cache
	}
	server := api.NewServer(cfg.Server, deps)
	if len(cfg.Server.AllowedOrigins) == 0 {
		log.Println("CORS disabled for the operator API; set ALLOWED_ORIGINS to enable browser access")
	}
	if cfg.Webhook.SigningSecret == "" {
		log.Println("Warning: webhook signing secret not set; provider events are not authenticated")
	}

	var ticker *worker.SequenceTicker
	if cfg.Scheduler.InProcess {
		var lock distlock.Lock
		if rdb != nil || db != nil {
			lock = distlock.New(rdb, db, worker.LockKey, cfg.Scheduler.Interval())
		}
		ticker = worker.NewSequenceTicker(scheduler, lock, cfg.Scheduler.Interval())
		if err := ticker.Start(); err != nil {
			log.Fatalf("Failed to start sequence ticker: %v", err)
		}
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	if ticker != nil {
		ticker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func newStores(db *sql.DB, rdb *redis.Client, cfg *config.Config) (stores, error) {
	if db == nil {
		seqs := memory.NewSequenceStore()
		enrollments := memory.NewEnrollmentStore()
		stats, err := memory.LoadSeedFile(cfg.Database.SeedFile, seqs, enrollments)
		if err != nil {
			return stores{}, err
		}
		log.Printf("Loaded seed %s: %d sequences, %d templates, %d enrollments",
			cfg.Database.SeedFile, stats.Sequences, stats.Templates, stats.Enrollments)
		return stores{
			enrollments: enrollments,
			events:      memory.NewEventStore(),
			sequences:   seqs,
			content:     seqs,
		}, nil
	}

	st := stores{
		enrollments: postgres.NewEnrollmentRepo(db),
		events:      postgres.NewEventRepo(db),
		sequences:   postgres.NewSequenceRepo(db),
		content:     postgres.NewTemplateRepo(db),
	}
	if rdb != nil {
		st.cache = rediscache.NewSequenceCache(st.sequences, rdb, cfg.Cache.SequenceTTL())
		st.sequences = st.cache
		log.Printf("Sequence cache enabled (ttl %v)", cfg.Cache.SequenceTTL())
	}
	return st, nil
}

func newSender(ctx context.Context, cfg config.ESPConfig) (sequence.Sender, error) {
	switch cfg.Provider {
	case "resend":
		return esp.NewResendSender(esp.ResendConfig{
			APIKey:  cfg.Resend.APIKey,
			BaseURL: cfg.Resend.BaseURL,
			From:    cfg.Resend.From,
			Timeout: cfg.Resend.Timeout(),
			Retries: cfg.Resend.MaxRetries,
		}), nil
	case "ses":
		return esp.NewSESSender(ctx, esp.SESConfig{
			Region:    cfg.SES.Region,
			AccessKey: cfg.SES.AccessKey,
			SecretKey: cfg.SES.SecretKey,
			From:      cfg.SES.From,
		})
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
