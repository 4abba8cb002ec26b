package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mahaj/chatrelay/pkg/db"
)

func newSchemaCmd(a *app) *cobra.Command {
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Manage the Scylla archive schema",
	}

	schema.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the keyspace and the room message table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.cfg.Scylla
			if err := db.CreateKeyspace(c.Hosts, c.Keyspace, c.Timeout); err != nil {
				return err
			}
			session, err := db.NewSession(c.Hosts, c.Keyspace, c.Timeout)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.EnsureSchema(); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "table %s.%s ready\n", c.Keyspace, db.MessagesTable)
			return nil
		},
	})

	schema.AddCommand(&cobra.Command{
		Use:   "drop",
		Short: "Drop the room message table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.cfg.Scylla
			session, err := db.NewSession(c.Hosts, c.Keyspace, c.Timeout)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.DropSchema(); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "table %s.%s dropped\n", c.Keyspace, db.MessagesTable)
			return nil
		},
	})
	return schema
}
