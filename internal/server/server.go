package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/researchchat/config"
	"github.com/mohammad-safakhou/researchchat/internal/agent/core"
	agenttele "github.com/mohammad-safakhou/researchchat/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researchchat/internal/runtime"
	"github.com/mohammad-safakhou/researchchat/internal/store"
)

// Options wires optional collaborators into the HTTP server.
type Options struct {
	Ledger   RunLedger
	Gatherer prometheus.Gatherer
	Meter    otelmetric.Meter
	Logger   *log.Logger
}

// New builds the echo instance serving the chat and run APIs.
func New(cfg config.ServerConfig, researcher Researcher, opts Options) *echo.Echo {
	cfg = cfg.Normalize()
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	chat := &ChatHandler{researcher: researcher, ledger: opts.Ledger, timeout: cfg.SessionTimeout, logger: logger}
	if opts.Meter != nil {
		counter, err := opts.Meter.Int64Counter("researchchat.sse.events",
			otelmetric.WithDescription("Session events written to SSE streams."))
		if err != nil {
			logger.Printf("sse event counter disabled: %v", err)
		} else {
			chat.events = counter
		}
	}

	api := e.Group("/api")
	chat.Register(api)
	(&RunsHandler{ledger: opts.Ledger}).Register(api)
	return e
}

// Run wires every dependency from cfg and serves until ctx ends.
func Run(ctx context.Context, cfg *config.Config, addr string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{Registerer: reg})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Printf("[TELEMETRY] shutdown: %v", err)
		}
	}()

	var rdb redis.UniversalClient
	if cfg.Search.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		defer client.Close()
		rdb = client
	}

	opts := Options{Gatherer: reg, Meter: tel.Meter}
	if cfg.Server.RunLedgerEnabled {
		st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Ledger = st
	}

	researcher, err := core.NewResearcherFromConfig(ctx, cfg, rdb, agenttele.NewTelemetry(reg, nil))
	if err != nil {
		return err
	}

	e := New(cfg.Server, researcher, opts)
	if addr == "" {
		addr = cfg.Server.Address
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] listening on %s", addr)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
