// Command outreachctl runs single engine passes and inspects senders from a
// terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unclebandit/outreach-engine/internal/app"
	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	verbose bool
	logger  *zap.Logger
	app     *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "outreachctl",
		Short:         "Operate the outreach engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if c.verbose {
				cfg.LogLevel = zapcore.DebugLevel.String()
			}
			c.logger, err = logging.New(cfg.LogLevel, cfg.Development())
			if err != nil {
				return err
			}
			c.app, err = app.Build(cmd.Context(), cfg, c.logger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
			if c.app != nil {
				return c.app.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		c.runCycleCmd(),
		c.scanCmd("scan-replies", "Check mailboxes for replies now", c.scanReplies),
		c.scanCmd("scan-bounces", "Check mailboxes for bounce notices now", c.scanBounces),
		c.statusCmd(),
		c.pauseCmd(true),
		c.pauseCmd(false),
	)
	return root
}
