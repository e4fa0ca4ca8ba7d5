package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/erflow/erflow/internal/config"
	"github.com/erflow/erflow/internal/domain/emergency"
	"github.com/erflow/erflow/internal/domain/hospital"
	"github.com/erflow/erflow/internal/domain/patient"
	"github.com/erflow/erflow/internal/domain/workflow"
	"github.com/erflow/erflow/internal/platform/gateway"
	"github.com/erflow/erflow/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "erflow-server",
		Short: "Emergency care coordination API server",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the coordination API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Shared state
	store := patient.NewStore()
	hospitals := hospital.NewRegistry(hospital.DefaultHospitals())
	assessor := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, logger)

	// Transition engine
	dwells := workflow.Dwells{
		PrepReady:    cfg.PrepReadyDwell,
		InTransit:    cfg.InTransitDwell,
		TheatreMove:  cfg.TheatreMoveDwell,
		TheatreEntry: cfg.TheatreEntryDwell,
	}
	engine, err := workflow.New(store, workflow.DefaultRules(dwells), cfg.TickInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid transition rules")
	}
	engine.SetObserver(func(ev workflow.TransitionEvent) {
		if ev.To != patient.StatusArrived {
			return
		}
		// Occupy a bed at the receiving hospital on arrival.
		if list := hospitals.List(); len(list) > 0 {
			if err := hospitals.Admit(list[0].ID); err != nil {
				logger.Error().Err(err).Str("nhs_number", ev.NHSNumber).Msg("admit on arrival failed")
			}
		}
	})

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	go engine.Run(engineCtx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.GatewayTimeout + 5*time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	// API group with per-client rate limiting
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Window:            time.Minute,
	}))

	// Coordination API
	svc := emergency.NewService(store, assessor, hospitals, cfg.DefaultETAMinutes, logger)
	emergency.NewHandler(svc, store).RegisterRoutes(apiV1)
	hospital.NewHandler(hospitals).RegisterRoutes(apiV1)

	// Speech-to-text pass-through
	apiV1.POST("/transcribe", transcribeHandler(assessor))

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopEngine()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// transcribeHandler forwards recorded audio to the gateway's speech-to-text
// endpoint and returns the transcript.
func transcribeHandler(client *gateway.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			Audio string `json:"audio"`
		}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if req.Audio == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "audio is required")
		}

		transcript, err := client.Transcribe(c.Request().Context(), req.Audio)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return c.JSON(http.StatusOK, transcript)
	}
}
