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
	"github.com/patrimo/patrimo/auth"
	"github.com/patrimo/patrimo/broker"
	"github.com/patrimo/patrimo/broker/rabbitmq"
	"github.com/patrimo/patrimo/contract/event"
	"github.com/patrimo/patrimo/fabric"
	"github.com/patrimo/patrimo/networth"
	"github.com/patrimo/patrimo/platform/config"
	"github.com/patrimo/patrimo/platform/logger"
)

const serviceName = "networth"

func main() {
	if err := run(); err != nil {
		fmt.Printf("networth service exited: %v\n", err)
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

	pub := fabric.NewPublisher(conn, log)
	if mirror, cleanup := kafkaMirror(cfg, log); mirror != nil {
		defer cleanup()
		pub.WithMirror(mirror)
	}

	// observational hooks; reads stay query-time, so handlers just log
	dispatcher := fabric.NewDispatcher(log)
	dispatcher.On(event.TypeAssetDeleted, logPayload(log, "asset removed"))
	dispatcher.On(event.TypeLiabilityDeleted, logPayload(log, "liability removed"))

	err = dispatcher.Bind(conn, serviceName,
		[]string{"user.#", "asset.#", "liability.#"}, broker.AckOnError)
	if err != nil {
		return err
	}

	svc := networth.NewService(networth.Endpoints{
		Assets:         aggregate.Descriptor{Name: "assets", BaseAddress: cfg.AssetServiceURL},
		AssetTotals:    "/api/assets/total",
		AssetList:      "/api/assets",
		Liabilities:    aggregate.Descriptor{Name: "liabilities", BaseAddress: cfg.LiabilityServiceURL},
		LiabilityTotal: "/api/liabilities/total",
		LiabilityList:  "/api/liabilities",
	}, aggregate.NewClient(log), cfg.CallTimeout, pub, log)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "broker": conn.State().String()})
	})
	networth.NewHandler(svc, log).Register(r, auth.NewVerifier(cfg.JWTSecret))

	return serve(r, cfg.HTTPAddr, log)
}

func logPayload(log *logger.Logger, msg string) fabric.HandlerFunc {
	return func(ctx context.Context, e event.Envelope) error {
		p, err := e.Payload()
		if err != nil {
			return err
		}

		log.Info(msg, "event_type", e.EventType, "payload", p)

		return nil
	}
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
