package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mahaj/chatrelay/pkg/auth"
	"github.com/mahaj/chatrelay/pkg/model"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		id   int64
		name string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a relay token for an identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			m, err := auth.NewManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			token, err := m.GenerateToken(model.Identity{ID: id, Name: name})
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
