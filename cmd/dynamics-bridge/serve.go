package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leadsuccess/dynamics-bridge/internal/config"
	"github.com/leadsuccess/dynamics-bridge/internal/db"
	"github.com/leadsuccess/dynamics-bridge/internal/dynamics"
	httpapp "github.com/leadsuccess/dynamics-bridge/internal/http"
	"github.com/leadsuccess/dynamics-bridge/internal/http/handlers"
	"github.com/leadsuccess/dynamics-bridge/internal/logging"
	"github.com/leadsuccess/dynamics-bridge/internal/metrics"
	"github.com/leadsuccess/dynamics-bridge/internal/msauth"
	"github.com/leadsuccess/dynamics-bridge/internal/transfer"
	"github.com/leadsuccess/dynamics-bridge/internal/wce"
)

const sessionLifetime = 12 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: "serve"})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := db.New(pool)

	sessions := scs.New()
	sessions.Store = pgxstore.New(pool)
	sessions.Lifetime = sessionLifetime
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.Secure = cfg.AuthCookieSecure
	sessions.Cookie.SameSite = http.SameSiteLaxMode

	callback := msauth.NewCallbackChannel()
	manager := msauth.NewManager(callback, msauth.Options{
		RedirectURL:  cfg.PublicBaseURL + "/api/dynamics/callback",
		LoginTimeout: cfg.LoginTimeout,
		Logger:       logger,
	})

	// A previously saved client configuration survives restarts; tokens
	// do not, so the operator reconnects interactively.
	if saved, found, err := store.Load(ctx); err != nil {
		return err
	} else if found {
		if err := manager.Configure(saved); err != nil {
			logger.Warn("saved dynamics configuration is no longer valid", "error", err)
		}
	}

	gateway := dynamics.NewGateway(manager, manager)
	transfers := transfer.NewService(gateway, manager, store, logger)

	h := &handlers.Handlers{
		Cfg:       cfg,
		Store:     store,
		Sessions:  sessions,
		Configs:   store,
		Auth:      manager,
		Callback:  callback,
		Transfers: transfers,
		Tester:    gateway,
		History:   store,
		Logger:    logger,
	}
	if cfg.WCEBaseURL != "" {
		attachments, err := wce.NewAttachmentClient(cfg.WCEBaseURL)
		if err != nil {
			return err
		}
		h.Attachments = attachments
	}

	srv, err := httpapp.NewEchoServer(h)
	if err != nil {
		return err
	}

	metricsErrCh := metrics.Serve(ctx, cfg.MetricsAddr)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case err := <-metricsErrCh:
			if err != nil {
				return err
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
