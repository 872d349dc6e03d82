package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(a *app) *cobra.Command {
	var eventType string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.audit.ListEvents(eventType, limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Fprintf(a.out, "%s  %-8s %-28s %s\n", e.TS.Format(time.RFC3339), e.Actor, e.Type, string(e.Payload))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "Only show events of this type")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events (0 for all)")
	return cmd
}
