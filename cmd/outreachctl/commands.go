package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

func (c *cli) runCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-cycle",
		Short: "Run one pass over every active sender",
		Long: `Runs a single orchestrator cycle: bounce scan, ledger read and a send
for every due contact, honoring daily caps and inter-send delays.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.app.Orchestrator.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

type scanFunc func(cmd *cobra.Command, sender *model.Sender) (int, error)

func (c *cli) scanCmd(use, short string, scan scanFunc) *cobra.Command {
	var senderID int
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			senders, err := c.targetSenders(cmd, senderID)
			if err != nil {
				return err
			}
			total := 0
			for _, sender := range senders {
				if !sender.HasLedger() {
					continue
				}
				n, err := scan(cmd, sender)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "sender %d: %v\n", sender.ID, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sender %d (%s): %d found\n", sender.ID, sender.Email, n)
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d\n", total)
			return nil
		},
	}
	cmd.Flags().IntVar(&senderID, "sender", 0, "Only scan this sender ID")
	return cmd
}

func (c *cli) scanReplies(cmd *cobra.Command, sender *model.Sender) (int, error) {
	return c.app.Replies.Scan(cmd.Context(), sender)
}

func (c *cli) scanBounces(cmd *cobra.Command, sender *model.Sender) (int, error) {
	return c.app.Bounces.Scan(cmd.Context(), sender)
}

func (c *cli) targetSenders(cmd *cobra.Command, senderID int) ([]*model.Sender, error) {
	if senderID > 0 {
		sender, err := c.app.SenderRepo.GetByID(cmd.Context(), senderID)
		if err != nil {
			return nil, err
		}
		return []*model.Sender{sender}, nil
	}
	return c.app.SenderRepo.ListAll(cmd.Context())
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show senders and today's sending budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := c.app.SenderService.ListSenders(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tSTATE\tLEDGER\tSENT TODAY\tREMAINING")
			for _, s := range summaries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
					s.ID, s.Email, senderState(s), ledgerLabel(s.Sender), s.SentToday, s.RemainingToday)
			}
			return w.Flush()
		},
	}
}

func senderState(s service.SenderSummary) string {
	if s.Paused {
		return "paused"
	}
	return "active"
}

func ledgerLabel(s *model.Sender) string {
	if !s.HasLedger() {
		return "-"
	}
	return s.LedgerID
}

func (c *cli) pauseCmd(paused bool) *cobra.Command {
	use, short := "resume <sender-id>", "Resume sending for a sender"
	if paused {
		use, short = "pause <sender-id>", "Stop sending for a sender"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid sender id %q", args[0])
			}
			sender, err := c.app.SenderService.SetPaused(cmd.Context(), id, paused)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sender %d (%s) paused=%t\n", sender.ID, sender.Email, sender.Paused)
			return nil
		},
	}
}
