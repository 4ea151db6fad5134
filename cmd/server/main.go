package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/you/go-jobsity-booking/internal/auth"
	"github.com/you/go-jobsity-booking/internal/config"
	"github.com/you/go-jobsity-booking/internal/httpx"
	"github.com/you/go-jobsity-booking/internal/notify"
	"github.com/you/go-jobsity-booking/internal/providers"
	"github.com/you/go-jobsity-booking/internal/service"
)

func main() {

	// Loading config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	amadeus := providers.NewAmadeus(cfg, logger)

	destinations := service.LoadDestinations(context.Background(), amadeus, cfg.HTTPTimeout, logger)

	// Creating services
	searchSvc := service.NewSearchService(amadeus, cfg.CacheTTL, logger)
	mailer, err := notify.NewMailer(cfg, logger)
	if err != nil {
		logger.Error("failed to configure mailer", "error", err)
		os.Exit(1)
	}
	bookingSvc := service.NewBookingService(searchSvc, mailer, destinations, logger)

	publicMux := http.NewServeMux()
	publicMux.HandleFunc("/auth/login", auth.LoginHandler(cfg, logger))

	protectedMux := http.NewServeMux()
	httpx.Routes(protectedMux, bookingSvc, logger)
	protectedMux.HandleFunc("GET /ws/{origin}/{destination}", httpx.WatchHandler(searchSvc, cfg.WatchEvery, cfg.CORSOrigins, logger))

	root := auth.JWTMiddleware(publicMux, protectedMux, cfg, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewCORS(cfg.CORSOrigins).Handler(root),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "address", srv.Addr, "tls", cfg.TLSCertFile != "")
		var err error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
