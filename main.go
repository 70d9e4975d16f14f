package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/recycle-points/internal/auth"
	"github.com/example/recycle-points/internal/config"
	"github.com/example/recycle-points/internal/events"
	"github.com/example/recycle-points/internal/grpcclient"
	"github.com/example/recycle-points/internal/handlers"
	"github.com/example/recycle-points/internal/logging"
	"github.com/example/recycle-points/internal/metrics"
	"github.com/example/recycle-points/internal/repository"
	"github.com/example/recycle-points/internal/restclient"
	"github.com/example/recycle-points/internal/usecase"
	"github.com/example/recycle-points/internal/vision"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *repository.LedgerStore
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	dbCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := repository.Open(dbCtx, cfg.DatabaseDriver, cfg.DatabaseDSN, repository.GormLogLevel(cfg.LogLevel))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	a.closers = append(a.closers, func() { _ = sqlDB.Close() })

	a.store = repository.NewLedgerStore(db, logger, repository.WithStoreTimeout(cfg.StoreTimeout))
	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) migrate(ctx context.Context) error {
	return a.store.Migrate(ctx, a.cfg.DatabaseDriver)
}

// scanUseCase wires the vision transport, cache, publisher and metrics
// around the ledger. reg may be nil.
func (a *app) scanUseCase(ctx context.Context, reg prometheus.Registerer) (*usecase.ScanUseCase, error) {
	analyzer, err := a.visionClient(ctx)
	if err != nil {
		return nil, err
	}

	opts := []usecase.Option{
		usecase.WithMaxImageBytes(a.cfg.MaxImageBytes),
		usecase.WithCache(a.cache(ctx)),
		usecase.WithPublisher(a.publisher()),
	}
	if reg != nil {
		opts = append(opts, usecase.WithMetrics(metrics.New(reg)))
	}
	return usecase.NewScanUseCase(a.store, analyzer, a.logger, opts...), nil
}

// readUseCase serves commands that never analyze an image.
func (a *app) readUseCase() *usecase.ScanUseCase {
	return usecase.NewScanUseCase(a.store, nil, a.logger)
}

func (a *app) visionClient(ctx context.Context) (vision.Client, error) {
	switch a.cfg.VisionTransport {
	case config.TransportGRPC:
		client, conn, err := grpcclient.DialVision(ctx, a.cfg.VisionEndpoint, a.cfg.VisionTimeout, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to vision service: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		return client, nil
	default:
		client, err := restclient.New(restclient.Config{
			Endpoint: a.cfg.VisionEndpoint,
			APIKey:   a.cfg.VisionAPIKey,
			Model:    a.cfg.VisionModel,
			Timeout:  a.cfg.VisionTimeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// cache returns a Redis cache when configured and reachable, and the
// in-process cache otherwise.
func (a *app) cache(ctx context.Context) usecase.Cache {
	if a.cfg.RedisAddr == "" {
		return usecase.NewMemoryCache(10*time.Minute, time.Minute)
	}

	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis unavailable, using in-process cache", zap.String("addr", a.cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return usecase.NewMemoryCache(10*time.Minute, time.Minute)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return usecase.NewRedisCache(client)
}

func (a *app) publisher() events.Publisher {
	if a.cfg.MQTTBroker == "" {
		return events.Nop{}
	}
	pub, err := events.NewMQTTPublisher(events.MQTTConfig{
		Broker:         a.cfg.MQTTBroker,
		ClientID:       a.cfg.MQTTClientID,
		Topic:          a.cfg.MQTTTopic,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}, a.logger)
	if err != nil {
		a.logger.Warn("mqtt unavailable, scan events disabled", zap.Error(err))
		return events.Nop{}
	}
	a.closers = append(a.closers, pub.Close)
	return pub
}

func (a *app) serve(ctx context.Context) error {
	authn, err := auth.New(auth.Config{
		Secret:   a.cfg.JWTSecret,
		Audience: a.cfg.JWTAudience,
		Disabled: a.cfg.AuthDisabled,
	})
	if err != nil {
		return fmt.Errorf("configure auth: %w (set JWT_SECRET or AUTH_DISABLED=true)", err)
	}
	if authn.Disabled() {
		a.logger.Warn("AUTH_DISABLED set, POST /scans accepts anonymous uploads")
	}

	if err := a.migrate(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	uc, err := a.scanUseCase(ctx, reg)
	if err != nil {
		return err
	}

	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.MaxMultipartMemory = int64(a.cfg.MaxImageBytes)
	handlers.RegisterRoutes(r, uc, handlers.Routes{
		Auth:           authn.Middleware(),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MaxUploadBytes: int64(a.cfg.MaxImageBytes),
	})

	server := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("recycle points API listening", zap.String("addr", a.cfg.HTTPAddr))
	return serveHTTPServer(server, a.cfg.ShutdownTimeout, a.logger)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
