package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/reelchain/internal/api"
	"github.com/forPelevin/reelchain/internal/logging"
	"github.com/forPelevin/reelchain/internal/pipeline"
	"github.com/forPelevin/reelchain/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept render jobs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().String("db", filepath.Join(".cache", "reelchain.db"), "SQLite job history database")
	cmd.Flags().String("out", "out", "Directory for finished renders")
	cmd.Flags().Int("workers", 1, "Jobs rendered concurrently")
	return cmd
}

func serve(cmd *cobra.Command) error {
	addr, _ := cmd.Flags().GetString("addr")
	dbPath, _ := cmd.Flags().GetString("db")
	outDir, _ := cmd.Flags().GetString("out")
	workers, _ := cmd.Flags().GetInt("workers")

	log := newLogger(cmd, false)

	st, err := store.Open(dbPath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	cfg, err := pipelineConfig(cmd, log)
	if err != nil {
		return err
	}
	cfg.OutDir = outDir
	cfg.Listeners = append(cfg.Listeners, st)

	runner, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	disp := api.NewDispatcher(runner, st, workers, log)

	srv := api.NewServer(api.ServerConfig{
		Addr:       addr,
		Store:      st,
		Dispatcher: disp,
		Logger:     logging.WithComponent(log, "http"),
		StartTime:  time.Now(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		disp.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	disp.Close()
	return nil
}
