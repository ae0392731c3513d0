package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"health-rag/internal/helper"
	"health-rag/internal/models"
	"health-rag/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Ingest the source document and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := newProviders(c.cfg)
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, c.cfg, p)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.NewServer(&c.cfg.Server, a.svc, a.index.Size())
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info().Msg("Shutting down server")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			log.Info().Msg("Server stopped")
			return nil
		},
	}
}

func newAskCmd(c *cli) *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the command line",
		Example: `  health-rag ask "What vegetables should I eat?" --profile ./data/me.csv
  health-rag ask "What is the capital of France?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newProviders(c.cfg)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), c.cfg, p)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.Answer(cmd.Context(), models.QueryRequest{Text: args[0], FileLocation: profilePath})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "CSV or XLSX file with the user's data")
	return cmd
}

func newIngestCmd(c *cli) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, chunk and index the source document",
		Long: `Load, chunk and index the configured source document. With a persistent
chromem directory or export path the index is written to disk; with --dry-run the
chunks are printed as JSON and nothing is embedded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				_, chunks, err := loadChunks(cmd.Context(), c.cfg)
				if err != nil {
					return err
				}
				if len(chunks) == 0 {
					return errors.New("source produced no chunks")
				}
				return helper.PrettyPrint(cmd.OutOrStdout(), chunks)
			}

			p, err := newProviders(c.cfg)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), c.cfg, p)
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %s\n", a.index.Size(), c.cfg.Source.Location)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the chunks without embedding them")
	return cmd
}
