package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ariefcatur/go-storefront-checkout/internal/audit"
	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	"github.com/ariefcatur/go-storefront-checkout/internal/events"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

func main() {
	app := &cli.App{
		Name:  "audit",
		Usage: "record checkout events for support lookups",
		Commands: []*cli.Command{
			{
				Name:   "consume",
				Usage:  "consume checkout events into postgres",
				Action: consume,
			},
			{
				Name:   "lookup",
				Usage:  "print stored checkout events by payment reference or email",
				Action: lookup,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "payment-ref"},
					&cli.StringFlag{Name: "email"},
					&cli.IntFlag{Name: "limit", Value: 50},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func open(ctx context.Context) (config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return cfg, nil, err
	}
	if cfg.PostgresDSN == "" {
		return cfg, nil, errors.New("STOREFRONT_POSTGRES_DSN is required")
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	return cfg, db, err
}

func consume(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, db, err := open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("STOREFRONT_KAFKA_BROKERS is required")
	}

	repo := &audit.Repo{DB: db}
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	svc := &audit.Service{Store: repo}

	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, relying on primary key for duplicates")
		} else {
			defer rdb.Close()
			svc.Dedup = &redisx.Dedup{Redis: rdb, Service: "audit"}
		}
	}

	log.WithFields(log.Fields{
		"topic":   events.TopicCheckoutEvents,
		"group":   cfg.AuditGroup,
		"workers": cfg.AuditWorkers,
	}).Info("audit consumer started")

	err = kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, events.TopicCheckoutEvents, cfg.AuditWorkers).
		Start(ctx, svc.HandleEvent)
	if err != nil {
		return err
	}
	log.Info("audit consumer stopped")
	return nil
}

func lookup(c *cli.Context) error {
	ref, email := c.String("payment-ref"), c.String("email")
	if ref == "" && email == "" {
		return cli.Exit("one of --payment-ref or --email is required", 2)
	}

	_, db, err := open(c.Context)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := &audit.Repo{DB: db}

	var recs []audit.Record
	if ref != "" {
		recs, err = repo.FindByPaymentRef(c.Context, ref)
	} else {
		recs, err = repo.FindByEmail(c.Context, email, c.Int("limit"))
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}
