package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OliverSchlueter/openack/internal/app"
	"github.com/OliverSchlueter/openack/internal/config"
	"github.com/OliverSchlueter/openack/internal/server"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "openack",
		Short:         "File based message exchange between agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serviceCmd(config.ServiceSend, "send-api", "Serve the send API", app.NewSendServer),
		serviceCmd(config.ServiceFetch, "fetch-api", "Serve the fetch API", app.NewFetchServer),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serviceCmd(service string, use string, short string, newServer func(config.Config) (*server.Server, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, service)
			if err != nil {
				return err
			}

			app.SetupLogging(cfg, service)

			srv, err := newServer(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	config.RegisterFlags(cmd, service)
	return cmd
}
