package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/atlas-chat/backend/internal/config"
	"github.com/zhouzirui/atlas-chat/backend/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "atlas-chat",
		Short:         "A country-aware chatbot backed by a hosted LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a config file (default: ./config.yaml if present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL")
	flags.StringVar(&opts.logFormat, "log-format", "", "override LOG_FORMAT (console or json)")

	rootCmd.AddCommand(newServeCmd(opts), newAskCmd(opts))
	return rootCmd
}

// loadConfig reads .env, the config file and the environment, then sets up
// logging.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded, using process environment only")
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
