package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/panelkit/panelauth/pkg/account"
	"github.com/panelkit/panelauth/pkg/authflow"
	"github.com/panelkit/panelauth/pkg/config"
	"github.com/panelkit/panelauth/pkg/cooldown"
	"github.com/panelkit/panelauth/pkg/credential"
	"github.com/panelkit/panelauth/pkg/device"
	"github.com/panelkit/panelauth/pkg/notification"
	"github.com/panelkit/panelauth/pkg/session"
	"github.com/panelkit/panelauth/pkg/signedtoken"
	"github.com/panelkit/panelauth/pkg/twofa"
	"github.com/panelkit/panelauth/pkg/user"
)

type StorageConfig struct {
	Backend string `env:"PANEL_STORAGE" env-default:"postgres"`
}

func buildRepositories(cfg config.Config, storage StorageConfig) (user.Repository, device.Repository, error) {
	if storage.Backend == "memory" {
		slog.Warn("Using in-memory storage, state is lost on restart")
		return user.NewInMemoryRepository(), device.NewInMemoryRepository(), nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.Db.User, cfg.Db.Password, cfg.Db.Host, cfg.Db.Port, cfg.Db.Database)
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed creating dbpool: %w", err)
	}
	return user.NewPostgresRepository(pool), device.NewPostgresRepository(pool), nil
}

func main() {
	cfg := config.Config{}
	storage := StorageConfig{}
	cleanenv.ReadEnv(&cfg)
	cleanenv.ReadEnv(&storage)

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	users, devices, err := buildRepositories(cfg, storage)
	if err != nil {
		slog.Error("Failed setting up storage", "backend", storage.Backend, "err", err)
		os.Exit(-1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		slog.Warn("No redis configured, password reset cooldown disabled")
	}

	notifier, err := notification.NewEmailNotifier(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		TLS:      cfg.SMTP.TLS,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		slog.Error("Failed setting up mail transport", "host", cfg.SMTP.Host, "err", err)
		os.Exit(-1)
	}

	tokens := signedtoken.NewService(cfg.Token.Secret, cfg.Token.Issuer)
	accounts := account.NewService(users, tokens,
		account.WithNotifier(notifier),
		account.WithCooldownGuard(cooldown.NewGuard(redisClient)),
		account.WithFeatures(cfg.Features),
	)
	flow := authflow.NewService(users, credential.NewVerifier(users), twofa.NewEngine(devices),
		authflow.WithFeatures(cfg.Features),
	)
	handle := authflow.NewHandle(flow, accounts, session.NewMemoryStore(),
		authflow.WithUserRepository(users),
		authflow.WithBaseURL(cfg.Server.BaseURL),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Route("/auth", handle.Routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("Starting server", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(-1)
	}
}
