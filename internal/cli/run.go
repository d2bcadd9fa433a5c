package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evan-idocoding/rtblink"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		flagFor     time.Duration
		flagVirtual bool
		flagOps     bool
		flagListen  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo board",
		Long: "Run starts every configured task and blocks until interrupted. With --for it runs " +
			"a bounded horizon instead and prints the LED toggle counts.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if flagVirtual {
				cfg.Kernel.Virtual = true
			}
			if flagOps {
				cfg.Ops.Enable = true
			}
			if flagListen != "" {
				cfg.Ops.Listen = flagListen
			}
			if cfg.Kernel.Virtual && flagFor <= 0 {
				return errors.New("--virtual needs --for: an unbounded virtual run never idles")
			}

			sys, err := rtblink.NewSystem(rtblink.SystemSpec{
				Config:   cfg,
				Logger:   a.logger.Logger,
				LogLevel: &a.logger.Level,
			})
			if err != nil {
				return err
			}

			if flagFor > 0 {
				if err := sys.RunFor(cmd.Context(), flagFor); err != nil {
					return fmt.Errorf("run for %s: %w", flagFor, err)
				}
				printToggles(cmd, sys, flagFor)
				return nil
			}

			err = sys.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			if herr := sys.HaltErr(); herr != nil {
				a.logger.Warn("kernel had halted before shutdown", zap.Error(herr))
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&flagFor, "for", 0, "Run this much kernel time, then stop (e.g. 3s)")
	cmd.Flags().BoolVar(&flagVirtual, "virtual", false, "Use virtual time: no wall-clock pacing (requires --for)")
	cmd.Flags().BoolVar(&flagOps, "ops", false, "Enable the ops HTTP endpoint")
	cmd.Flags().StringVar(&flagListen, "listen", "", "Ops listen address (default from config)")
	return cmd
}

func printToggles(cmd *cobra.Command, sys *rtblink.System, d time.Duration) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "after %s (%d ticks):\n", d, sys.Kernel.Now())
	for _, o := range sys.Board.Outputs() {
		state := "off"
		if o.Level() {
			state = "on"
		}
		fmt.Fprintf(out, "  %-10s toggles=%d %s\n", o.Name(), o.Toggles(), state)
	}
}
