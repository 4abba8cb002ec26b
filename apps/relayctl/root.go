package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/log"
)

type app struct {
	configPath string
	cfg        *config.Config
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = "relayctl"
	}
	if cfg.Log.Level == "" || cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	log.Init(cfg.Log)

	a.cfg = cfg
	return nil
}

// withStore opens the configured history backend for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(history.Admin) error) error {
	store, closer, err := history.Open(ctx, a.cfg)
	if err != nil {
		return errors.Wrap(err, "failed to open history store")
	}
	defer closer.Close()
	return fn(store)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:               "relayctl",
		Short:             "Administer the chat relay",
		Long:              "Mint tokens, inspect and maintain room history, manage the archive schema.",
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "directory containing config.yaml")

	root.AddCommand(
		newTokenCmd(a),
		newRoomsCmd(a),
		newHistoryCmd(a),
		newClearCmd(a),
		newDeleteCmd(a),
		newTrimCmd(a),
		newSchemaCmd(a),
		newVerifyCmd(a),
	)
	return root
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
