package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/taskdiff/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = port
	}
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}

	srv := server.New(r.comparisons, r.config, r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting server", "addr", srv.Addr())
	r.writePlain("Listening on http://%s\n", srv.Addr())

	return srv.ListenAndServe(ctx)
}

// serveCommand runs the HTTP API server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the taskdiff HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides config)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind (overrides config)",
			},
		},
		Action: r.Serve,
	}
}
