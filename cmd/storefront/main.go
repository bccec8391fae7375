package main

import (
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ariefcatur/go-storefront-checkout/internal/backend"
	"github.com/ariefcatur/go-storefront-checkout/internal/config"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "digital storefront checkout service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the storefront HTTP API",
				Action: serve,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides STOREFRONT_HTTP_ADDR"},
				},
			},
			{
				Name:   "check",
				Usage:  "ask the order service whether an email already owns a product",
				Action: checkPurchase,
				Flags:  supportFlags,
			},
			{
				Name:   "resend",
				Usage:  "ask the order service to mail the delivery link again",
				Action: resendEmail,
				Flags:  supportFlags,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var supportFlags = []cli.Flag{
	&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
	&cli.StringFlag{Name: "product", Aliases: []string{"p"}, Required: true, Usage: "product id"},
}

func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return cfg, err
	}
	return cfg, cfg.RequireBackend()
}

func newBackend(cfg config.Config) *backend.Client {
	return backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithContentType(cfg.BackendContentType),
	)
}

func checkPurchase(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	st, err := newBackend(cfg).CheckPurchase(c.Context, c.String("email"), c.String("product"))
	if err != nil {
		return err
	}
	return printJSON(c, st)
}

func resendEmail(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	res, err := newBackend(cfg).ResendEmail(c.Context, c.String("email"), c.String("product"))
	if err != nil {
		return err
	}
	if err := printJSON(c, res); err != nil {
		return err
	}
	if !res.Success {
		return cli.Exit("resend refused", 1)
	}
	return nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
