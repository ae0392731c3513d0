package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"health-rag/internal/config"
)

const configFilePath = "./configs/config.yaml"

// cli carries the flags and config shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "health-rag",
		Short: "Answer health questions from a reference document and user data",
		Long: `health-rag ingests one reference document at startup and answers questions
over HTTP. Health questions are answered from retrieved passages of the document
and the user's own data table; other questions go straight to the model.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVar(&c.configPath, "config", configFilePath, "Path to the YAML config file")

	cmd.AddCommand(newServeCmd(c), newAskCmd(c), newIngestCmd(c))
	return cmd
}

func (c *cli) load(logOut io.Writer) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg.Log, logOut); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")
	c.cfg = cfg
	return nil
}

func setupLogger(cfg config.LogConfig, out io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch cfg.Format {
	case "json":
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	case "console":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Caller().Logger()
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return nil
}
