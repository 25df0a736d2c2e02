package main

import (
	"os"

	"github.com/spf13/cobra"

	"personal/botkit/src/config"
	"personal/botkit/src/logging"
)

type rootFlags struct {
	configPath string
	debug      bool
	pretty     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "botkit",
		Short:        "Run a Discord bot from a directory of JavaScript handlers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to botkit.yaml")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log every gateway frame")
	root.PersistentFlags().BoolVar(&flags.pretty, "pretty", false, "human readable log output")

	root.AddCommand(newRunCmd(flags), newCommandsCmd(flags))
	return root
}

// load reads the configuration and configures logging from it.
func (f *rootFlags) load() (*config.Config, error) {
	logging.Configure(logging.Config{Pretty: f.pretty})
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.debug {
		cfg.Debug = true
	}
	logging.Configure(logging.Config{
		Level:  cfg.LogLevel,
		Debug:  cfg.Debug,
		Pretty: f.pretty,
	})
	return cfg, nil
}
