package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/lazypower/memkeep/internal/config"
	"github.com/lazypower/memkeep/internal/engine"
	"github.com/lazypower/memkeep/internal/server"
	"github.com/lazypower/memkeep/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dir := cfg.StorageDir
	if dir == "" {
		dir, err = store.DefaultDir()
		if err != nil {
			return fmt.Errorf("resolve store dir: %w", err)
		}
	}

	st, err := store.Open(dir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st, policyFromConfig(cfg), time.Duration(cfg.SessionCacheSeconds)*time.Second)

	// Decay once on startup, then on the configured schedule.
	if stats, err := eng.RunDecay(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: startup decay failed: %v\n", err)
	} else if stats.MemoriesExpired+stats.MemoriesCompressed > 0 {
		fmt.Fprintf(os.Stderr, "  decay: expired %d, compressed %d\n",
			stats.MemoriesExpired, stats.MemoriesCompressed)
	}

	var sched *cron.Cron
	if cfg.Decay.Schedule != "" {
		sched = cron.New()
		if _, err := sched.AddFunc(cfg.Decay.Schedule, func() {
			if _, err := eng.RunDecay(); err != nil {
				fmt.Fprintf(os.Stderr, "scheduled decay failed: %v\n", err)
			}
		}); err != nil {
			return fmt.Errorf("config: decay schedule %q: %w", cfg.Decay.Schedule, err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "memkeep serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  store: %s\n", dir)
		if cfg.Decay.Schedule != "" {
			fmt.Fprintf(os.Stderr, "  decay schedule: %s\n", cfg.Decay.Schedule)
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
