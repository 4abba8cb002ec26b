package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mahaj/chatrelay/pkg/history"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/relay"
)

func roomArg(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("room name required")
	}
	return relay.ValidateRoom(args[0])
}

func newRoomsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List rooms with their stored message count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s history.Admin) error {
				activity, err := history.RoomActivity(cmd.Context(), s)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ROOM\tMESSAGES")
				for _, r := range activity {
					fmt.Fprintf(w, "%s\t%d\n", r.Room, r.Messages)
				}
				return w.Flush()
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <room>",
		Short: "Print the stored history of a room, oldest first",
		Args:  cobra.MatchAll(cobra.ExactArgs(1), roomArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s history.Admin) error {
				msgs, err := s.ReadAll(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(out(cmd))
					for _, m := range msgs {
						if err := enc.Encode(m); err != nil {
							return err
						}
					}
					return nil
				}

				for _, m := range msgs {
					fmt.Fprintf(out(cmd), "%s %s [%s] %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.ID, authorName(m), m.ContentText())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON message per line")
	return cmd
}

func authorName(m model.Message) string {
	if m.Author == nil {
		return "?"
	}
	return m.Author.Name
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <room>",
		Short: "Delete every stored message of a room",
		Args:  cobra.MatchAll(cobra.ExactArgs(1), roomArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s history.Admin) error {
				if err := s.Clear(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "cleared %s\n", args[0])
				return nil
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <room> <uuid>",
		Short: "Delete one stored message by id",
		Args:  cobra.MatchAll(cobra.ExactArgs(2), roomArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return errors.Wrap(err, "invalid message id")
			}
			return a.withStore(cmd.Context(), func(s history.Admin) error {
				m, err := s.Delete(cmd.Context(), args[0], id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "deleted %s from %s: %s\n", m.ID, args[0], m.ContentText())
				return nil
			})
		},
	}
}

func newTrimCmd(a *app) *cobra.Command {
	var keep int64
	cmd := &cobra.Command{
		Use:   "trim <room>",
		Short: "Keep only the newest messages of a room",
		Args:  cobra.MatchAll(cobra.ExactArgs(1), roomArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return errors.New("--keep must not be negative")
			}
			return a.withStore(cmd.Context(), func(s history.Admin) error {
				if err := s.Trim(cmd.Context(), args[0], keep); err != nil {
					return err
				}
				n, err := s.Count(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "%s now holds %d messages\n", args[0], n)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&keep, "keep", 100, "number of newest messages to keep")
	return cmd
}
