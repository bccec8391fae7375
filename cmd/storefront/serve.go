package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	"github.com/ariefcatur/go-storefront-checkout/internal/events"
	"github.com/ariefcatur/go-storefront-checkout/internal/gateway"
	"github.com/ariefcatur/go-storefront-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

func serve(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB (optional, catalog only)
	var db *pgxpool.Pool
	if cfg.PostgresDSN != "" {
		db, err = postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	cat, err := loadCatalog(ctx, cfg, db)
	if err != nil {
		return err
	}
	gw, err := newGateway(cfg)
	if err != nil {
		return err
	}
	bc := newBackend(cfg)

	// Redis (optional): shared purchase guard and snapshot store
	var guard checkout.Guard = checkout.NewMemoryGuard()
	var snapshots *redisx.SnapshotStore
	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, using in-process purchase guard")
		} else {
			defer rdb.Close()
			guard = &redisx.Guard{Redis: rdb}
			snapshots = &redisx.SnapshotStore{Redis: rdb}
		}
	}

	// Kafka (optional): checkout events
	var prod *kafkax.Producer
	var publisher *events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, events.TopicCheckoutEvents, 1024)
		prod.Start(context.Background())
		publisher = &events.Publisher{Sink: prod, ServiceName: cfg.ServiceName}
	}

	sessions := httpx.NewSessions(cfg.SessionTTL, func(id string) *checkout.Orchestrator {
		o := checkout.New(bc, gw,
			checkout.WithGuard(guard),
			checkout.WithCurrency(cfg.Currency),
			checkout.WithLogger(log.WithFields(log.Fields{"component": "checkout", "session": id})),
		)
		if publisher != nil {
			o.Subscribe(publisher.Listener(id))
		}
		if snapshots != nil {
			o.Subscribe(snapshots.Listener(id))
		}
		return o
	})
	go sessions.Run(ctx, time.Minute)

	router := httpx.NewRouter(3*cfg.BackendTimeout + 10*time.Second)
	(&httpx.CatalogHandler{Catalog: cat}).Register(router)
	ch := &httpx.CheckoutHandler{Catalog: cat, Sessions: sessions, CookieTTL: cfg.SessionTTL}
	if snapshots != nil {
		ch.Snapshots = snapshots
	}
	ch.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":     cfg.HTTPAddr,
			"gateway":  gw.Name(),
			"products": cat.Len(),
		}).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	}
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	return nil
}

func loadCatalog(ctx context.Context, cfg config.Config, db *pgxpool.Pool) (*catalog.Catalog, error) {
	var src catalog.Source
	switch {
	case cfg.CatalogPath != "":
		src = catalog.FileSource{Path: cfg.CatalogPath}
	case cfg.CatalogURL != "":
		src = catalog.URLSource{URL: cfg.CatalogURL}
	case db != nil:
		src = catalog.PostgresSource{DB: db}
	default:
		return nil, errors.New("no catalog source: set STOREFRONT_CATALOG_PATH, STOREFRONT_CATALOG_URL or STOREFRONT_POSTGRES_DSN")
	}
	return catalog.Load(ctx, src)
}

func newGateway(cfg config.Config) (gateway.Gateway, error) {
	switch cfg.GatewayProvider {
	case gateway.ProviderRazorpay:
		return gateway.Razorpay{StoreName: cfg.StoreName}, nil
	case gateway.ProviderPayPal:
		if cfg.PayPalClientID == "" || cfg.PayPalSecret == "" {
			return nil, errors.New("paypal gateway needs STOREFRONT_PAYPAL_CLIENT_ID and STOREFRONT_PAYPAL_SECRET")
		}
		api := gateway.NewPayPalAPI(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalSecret, cfg.BackendTimeout)
		return gateway.PayPal{API: api}, nil
	default:
		return nil, errors.Errorf("unknown gateway %q", cfg.GatewayProvider)
	}
}
