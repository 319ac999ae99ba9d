package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Sentini2/edusp/api/handlers"
	"github.com/Sentini2/edusp/internal/config"
	"github.com/Sentini2/edusp/internal/db"
	"github.com/Sentini2/edusp/internal/license"
	"github.com/Sentini2/edusp/internal/logger"
	"github.com/Sentini2/edusp/internal/relay"
	"github.com/Sentini2/edusp/internal/repository"
	"github.com/Sentini2/edusp/internal/session"
	"github.com/Sentini2/edusp/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Listen:    %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Licenses:  %v\n\n", cfg.License.Enabled)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.CloseDB()

	licenses := license.NewService(
		repository.NewLicenseRepository(database),
		license.Config{MaxHardware: cfg.License.MaxHardware},
		log,
	)

	registry := session.NewRegistry(log)
	router := relay.NewRouter(registry, log)
	defer router.Close()

	var opts []relay.Option
	if cfg.License.Enabled {
		opts = append(opts, relay.WithGate(licenses))
	}
	hub := relay.NewHub(registry, router, log, opts...)

	wsHandler := ws.NewHandler(hub, ws.Config{
		SendBuffer:     cfg.Relay.SendBuffer,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		WriteWait:      cfg.Relay.WriteWait,
		PongWait:       cfg.Relay.PongWait,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log), corsMiddleware(cfg.Server.AllowedOrigins))

	labHandler := handlers.NewLabHandler(registry)
	r.GET("/health", labHandler.Health)
	handlers.NewWebSocketHandler(wsHandler, cfg.Relay.DefaultLab).RegisterRoutes(r)

	api := r.Group("/api")
	{
		labHandler.RegisterRoutes(api)
		handlers.NewLicenseHandler(licenses, cfg.License.AdminToken).RegisterRoutes(api)
	}

	if cfg.Server.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.StaticDir))))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting relay hub", "addr", cfg.Server.Addr, "license_gate", cfg.License.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down",
		"agents", registry.AgentCount(),
		"controllers", registry.ControllerCount(),
		"pending_delayed", router.Pending(),
	)
	router.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

// corsMiddleware returns a CORS middleware for the HTTP API. An empty origin
// list allows any origin.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0 || slices.Contains(allowed, "*"):
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
