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

	"github.com/gin-gonic/gin"

	"github.com/patrimo/patrimo/aggregate"
	"github.com/patrimo/patrimo/broker"
	"github.com/patrimo/patrimo/broker/rabbitmq"
	"github.com/patrimo/patrimo/fabric"
	"github.com/patrimo/patrimo/platform/config"
	"github.com/patrimo/patrimo/platform/logger"
	"github.com/patrimo/patrimo/registry"
)

const serviceName = "registry"

func main() {
	if err := run(); err != nil {
		fmt.Printf("registry service exited: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bootLog, err := logger.New(config.GetEnv("APP_ENV", "development", nil))
	if err != nil {
		return err
	}
	defer bootLog.Sync()

	log := bootLog.With("service", serviceName)
	cfg := config.Load(log)

	descriptors, err := registry.LoadDescriptors(cfg.RegistryFile)
	if err != nil {
		return err
	}

	log.Info("registry loaded", "services", len(descriptors))

	conn, err := rabbitmq.Dial(rabbitmq.Config{
		URL:            cfg.BrokerURL,
		Exchange:       cfg.Exchange,
		ConnTimeout:    cfg.ConnTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	// the registry watches the whole fabric for observability
	dispatcher := fabric.NewDispatcher(log)
	if err := dispatcher.Bind(conn, serviceName, []string{"#"}, broker.AckOnError); err != nil {
		return err
	}

	reg := registry.New(descriptors, aggregate.NewClient(log), cfg.CallTimeout, log)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "broker": conn.State().String()})
	})
	registry.NewHandler(reg, log).Register(r)

	return serve(r, cfg.HTTPAddr, log)
}

func serve(handler http.Handler, addr string, log *logger.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		log.Info("http server listening", "addr", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
