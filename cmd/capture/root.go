package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/samirrijal/houselocator/internal/adapters/houseapi"
	natsadapter "github.com/samirrijal/houselocator/internal/adapters/nats"
	"github.com/samirrijal/houselocator/internal/adapters/postgres"
	"github.com/samirrijal/houselocator/internal/core/ports"
	"github.com/samirrijal/houselocator/internal/core/usecases"
	"github.com/samirrijal/houselocator/internal/pkg/config"
	"github.com/samirrijal/houselocator/internal/pkg/logging"
)

// app holds the lazily opened connections shared by subcommands.
type app struct {
	in     io.Reader
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger

	api *houseapi.Client
	db  *postgres.DB
	nc  *nats.Conn
}

func rootCommand(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}

	root := &cobra.Command{
		Use:           "capture",
		Short:         "Capture and manage house locations",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load("houselocator-capture")
			if err != nil {
				return err
			}
			a.cfg = cfg
			// stdout carries command output, logs go to stderr
			a.logger = logging.New(os.Stderr, cfg.Log.Level, "text")
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	root.AddCommand(
		addCommand(a),
		listCommand(a),
		mapCommand(a),
		removeCommand(a),
		simulateCommand(a),
		watchCommand(a),
	)
	return root
}

// gateway builds the data gateway: the HTTP API first, the database second.
func (a *app) gateway(ctx context.Context) (*usecases.Gateway, error) {
	var transports []ports.PropertyTransport
	if a.cfg.Gateway.APIBaseURL != "" {
		a.api = houseapi.New(a.cfg.Gateway.APIBaseURL, a.cfg.Gateway.Timeout)
		transports = append(transports, a.api)
	}
	if a.cfg.Gateway.Direct {
		db, err := postgres.New(ctx, a.cfg.Database.DSN(), 2)
		if err != nil {
			// the API may still be reachable
			a.logger.Warn("direct transport unavailable", "error", err)
		} else {
			a.db = db
			transports = append(transports, postgres.NewDirectTransport(postgres.NewPropertyRepo(db)))
		}
	}
	if len(transports) == 0 {
		return nil, errors.New("no gateway transport available")
	}
	return usecases.NewGateway(a.logger, transports...), nil
}

func (a *app) nats() (*nats.Conn, error) {
	if a.nc != nil {
		return a.nc, nil
	}
	nc, err := natsadapter.Connect(a.cfg.NATS.URL, "houselocator-capture")
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	a.nc = nc
	return nc, nil
}

func (a *app) close() {
	if a.api != nil {
		a.api.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.nc != nil {
		a.nc.Close()
	}
}
