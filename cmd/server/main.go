package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurant-api/internal/factory"
	"restaurant-api/internal/handler"
	"restaurant-api/internal/util"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      setupRouter(f),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	servers := []*http.Server{server}
	certManager := f.CertManager()
	if certManager != nil {
		server.Addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.TLSPort)
		server.TLSConfig = certManager.TLSConfig()

		// HTTP server for ACME challenges and the HTTPS redirect
		if challenge := certManager.ChallengeHandler(); challenge != nil {
			servers = append(servers, &http.Server{
				Addr:              ":80",
				Handler:           challenge,
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
			})
		}
	} else {
		util.Warn("TLS is disabled", util.String("environment", cfg.Environment))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			util.Info("Starting server",
				util.String("environment", cfg.Environment),
				util.String("address", srv.Addr),
				util.Bool("tls", srv.TLSConfig != nil),
			)
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return f.Run(gctx)
	})

	g.Go(func() error {
		waitForShutdown(gctx, servers...)
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		util.Error("Server stopped with error", util.ErrorField(err))
	}
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	logger := util.Get()
	services := f.ServiceFactory()

	return handler.NewRouter(f.Config(), handler.RouterDeps{
		Auth:    handler.NewAuthHandler(services.AuthService(), logger.Named("auth_handler")),
		Offers:  handler.NewOfferHandler(services.OfferService(), logger.Named("offer_handler")),
		Tokens:  f.Issuer(),
		Limiter: f.Limiter(),
		Health:  f.HealthCheck,
	}, logger)
}

// waitForShutdown blocks until a signal arrives or ctx ends, then drains the servers.
func waitForShutdown(ctx context.Context, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	select {
	case sig := <-signalChan:
		util.Info("Received shutdown signal", util.String("signal", sig.String()))
	case <-ctx.Done():
		util.Warn("Shutting down after a component failure")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.String("address", srv.Addr), util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
}
