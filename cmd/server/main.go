package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/referral-tracker/internal/api"
	"github.com/ignite/referral-tracker/internal/config"
	"github.com/ignite/referral-tracker/internal/invite"
	"github.com/ignite/referral-tracker/internal/pkg/distlock"
	"github.com/ignite/referral-tracker/internal/pkg/logger"
	"github.com/ignite/referral-tracker/internal/pkg/metrics"
	"github.com/ignite/referral-tracker/internal/repository/memory"
	"github.com/ignite/referral-tracker/internal/repository/postgres"
	"github.com/ignite/referral-tracker/internal/service/referral"
	"github.com/ignite/referral-tracker/internal/storage"
)

// checkPortAvailable attempts to bind to the given port to verify it's free.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// extractHost returns the host part of a DSN for logging without credentials.
func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		logger.Error("pre-flight check failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store: Postgres when configured, otherwise in-memory.
	var db *sql.DB
	var repo referral.Repository
	if cfg.Database.URL != "" {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			logger.Error("database unavailable", "host", extractHost(cfg.Database.URL), "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = postgres.NewReferralRepo(db)
		logger.Info("using postgres store", "host", extractHost(cfg.Database.URL))
	} else {
		repo = memory.NewReferralRepo()
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
	}

	// Redis is optional; without it resend locks use Postgres advisory locks
	// or the in-process table.
	redisClient := openRedis(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sender, err := buildSender(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize sender", "mode", cfg.Sender.Mode, "error", err)
		os.Exit(1)
	}

	archive, err := storage.New(ctx, cfg.Snapshot)
	if err != nil {
		logger.Error("failed to initialize snapshot archive", "backend", cfg.Snapshot.Backend, "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "referrals"))
	}

	svc := referral.NewService(repo, sender, distlock.NewFactory(redisClient, db), referral.Config{
		Cooldown: cfg.Referral.Cooldown(),
		LockTTL:  cfg.Referral.LockTTL(),
	})
	svc.SetMetrics(metrics.New(reg))

	server := api.NewServer(cfg.Server,
		api.NewHandlers(svc, archive),
		api.NewHealthChecker(db, redisClient),
		reg,
	)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("starting server", "addr", addr, "sender", cfg.Sender.Mode)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	// In-flight resends finish within the send delay; give them room.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Referral.SendDelayDuration()+10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		logger.Info("redis not configured, resend locks fall back to postgres or in-process")
		return nil
	}

	client := redis.NewClient(redisOptions(cfg))

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, falling back", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.Addr)
	return client
}

// redisOptions accepts either a redis:// URL or a bare host:port. Password
// and DB from config fill in whatever the URL leaves out.
func redisOptions(cfg config.RedisConfig) *redis.Options {
	opts, err := redis.ParseURL(cfg.Addr)
	if err != nil {
		return &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	return opts
}

func buildSender(ctx context.Context, cfg *config.Config) (referral.Sender, error) {
	if cfg.Sender.Mode != "ses" {
		return invite.NewSimulatedSender(cfg.Referral.SendDelayDuration()), nil
	}
	renderer, err := invite.NewRenderer(cfg.Sender.Subject, cfg.Sender.Template, cfg.Sender.SignupURL)
	if err != nil {
		return nil, err
	}
	return invite.NewSESSender(ctx, invite.SESConfig{
		AccessKey:        cfg.Sender.AccessKey,
		SecretKey:        cfg.Sender.SecretKey,
		Region:           cfg.Sender.Region,
		FromEmail:        cfg.Sender.FromEmail,
		FromName:         cfg.Sender.FromName,
		ConfigurationSet: cfg.Sender.ConfigurationSet,
	}, renderer)
}
