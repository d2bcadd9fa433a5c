// Package cli implements the rtblink command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/evan-idocoding/rtblink/config"
	"github.com/evan-idocoding/rtblink/logging"
)

// app holds what the persistent flags resolve to. Subcommands read it after
// PersistentPreRunE.
type app struct {
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg     *config.Config
	logger  *logging.Logger
	restore func()
}

// NewRootCmd creates the root cobra command for the rtblink CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "rtblink",
		Short: "LED blink demo on a priority-preemptive tick kernel",
		Long: "rtblink runs the blinker, deadline blinker and button tasks of the demo board " +
			"on a simulated board, with an optional operator HTTP endpoint.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.flagConfig, "config", "", "Config file (or RTBLINK_CONFIG env)")
	root.PersistentFlags().BoolVar(&a.flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.flagLogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.flagLogFormat, "log-format", "", "Log format override (console, json)")

	root.AddCommand(
		newRunCmd(a),
		newTasksCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.flagConfig)
	if err != nil {
		return err
	}
	if a.flagDebug {
		a.flagLogLevel = "debug"
	}
	if a.flagLogLevel != "" {
		cfg.Log.Level = a.flagLogLevel
	}
	if a.flagLogFormat != "" {
		cfg.Log.Format = a.flagLogFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = l
	a.restore = logging.SetGlobal(l.Logger)
	return nil
}

func (a *app) teardown() error {
	if a.restore != nil {
		a.restore()
		a.restore = nil
	}
	if a.logger == nil {
		return nil
	}
	err := a.logger.Close()
	a.logger = nil
	return err
}
