// Command ripple1d starts, stops, and reports on the job server and its
// worker pool, per spec.md §6's CLI surface.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Dewberry/ripple1d/jobserver"
)

// Cfg holds the CLI's bound configuration, mirroring the teacher's
// viper-backed Cfg pattern (inmaputil/cmd.go's InitializeConfig).
type Cfg struct {
	*viper.Viper
	Root, startCmd, stopCmd, statusCmd *cobra.Command
}

func initializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "ripple1d",
		Short: "Reach-scoped HEC-RAS sub-model factory and job server.",
		Long: `ripple1d conflates a source HEC-RAS model against the National Water
Model hydrofabric, subsets reach-scoped sub-models, orchestrates HEC-RAS
runs, and serves all of it through an HTTP job queue.`,
		DisableAutoGenTag: true,
	}

	cfg.startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the job server and worker pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cfg)
		},
		DisableAutoGenTag: true,
	}

	cfg.stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop a running job server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cfg)
		},
		DisableAutoGenTag: true,
	}

	cfg.statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report whether the job server is running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cfg)
		},
		DisableAutoGenTag: true,
	}

	cfg.Root.AddCommand(cfg.startCmd, cfg.stopCmd, cfg.statusCmd)

	flags := []struct {
		name, usage string
		defaultVal  interface{}
	}{
		{"listen", "address the job server listens on", "localhost:8080"},
		{"workers", "size of the worker pool", 1},
		{"queue_dir", "directory backing the persistent job queue", "./ripple1d-queue"},
		{"pid_file", "path to the pid file written by start", "./ripple1d.pid"},
		{"terrain_tool", "path to the external terrain-generation executable", "ras_terrain"},
		{"ras_version", "HEC-RAS engine version to bind, e.g. 631", "631"},
	}
	for _, f := range flags {
		set := cfg.Root.PersistentFlags()
		switch v := f.defaultVal.(type) {
		case string:
			set.String(f.name, v, f.usage)
		case int:
			set.Int(f.name, v, f.usage)
		}
		cfg.BindPFlag(f.name, set.Lookup(f.name))
	}
	cfg.SetEnvPrefix("RIPPLE1D")

	return cfg
}

func runStart(cfg *Cfg) error {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	store, err := jobserver.NewStore(cfg.GetString("queue_dir"))
	if err != nil {
		return fmt.Errorf("ripple1d: open job queue: %w", err)
	}
	registry := jobserver.DefaultRegistry(jobserver.JSONNetworkSource{})
	pool := jobserver.NewPool(store, registry, cfg.GetInt("workers"), logger)
	srv := jobserver.NewServer(store, registry, pool, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	if err := os.WriteFile(cfg.GetString("pid_file"), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("ripple1d: write pid file: %w", err)
	}
	defer os.Remove(cfg.GetString("pid_file"))

	httpSrv := &http.Server{Addr: cfg.GetString("listen"), Handler: srv}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.WithField("listen", cfg.GetString("listen")).Info("job server starting")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ripple1d: serve: %w", err)
	}
	return nil
}

func runStop(cfg *Cfg) error {
	data, err := os.ReadFile(cfg.GetString("pid_file"))
	if err != nil {
		return fmt.Errorf("ripple1d: no running server found (%w)", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("ripple1d: invalid pid file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("ripple1d: find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("ripple1d: signal process %d: %w", pid, err)
	}
	fmt.Printf("sent stop signal to pid %d\n", pid)
	return nil
}

func runStatus(cfg *Cfg) error {
	conn, err := net.DialTimeout("tcp", cfg.GetString("listen"), 2*time.Second)
	if err != nil {
		fmt.Println("not running")
		return fmt.Errorf("ripple1d: job server unreachable: %w", err)
	}
	conn.Close()
	fmt.Println("running")
	return nil
}

func main() {
	cfg := initializeConfig()
	cfg.Root.SilenceUsage = true
	if err := cfg.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var _ *pflag.FlagSet
