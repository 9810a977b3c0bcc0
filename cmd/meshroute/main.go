package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshroute/meshroute/pkg/config"
	"github.com/meshroute/meshroute/pkg/export"
	"github.com/meshroute/meshroute/pkg/log"
	"github.com/meshroute/meshroute/pkg/manager"
	"github.com/meshroute/meshroute/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meshroute",
	Short: "MeshRoute - SD-WAN routing intelligence",
	Long: `MeshRoute monitors the health of every WAN path between sites,
fails traffic over to backups when a path degrades, and steers each
flow onto the path its traffic class cares about.`,
	Version: Version,
}

var configPath string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"MeshRoute version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(checkCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the routing core",
	Long: `Run the MeshRoute daemon: health monitoring, failover evaluation,
flow routing and the metrics endpoint, until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
		metrics.SetVersion(Version)

		mgr, err := manager.NewManager(cfg)
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}
		mgr.Start()

		var httpServer *http.Server
		if cfg.MetricsAddr != "" {
			httpServer = metricsServer(cfg.MetricsAddr)
			logger := log.Component("main")
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("metrics listener failed")
				}
			}()
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
		}

		fmt.Printf("MeshRoute daemon running (site %s). Press Ctrl+C to stop.\n", mgr.SiteID())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}
		if err := mgr.Stop(); err != nil {
			return fmt.Errorf("failed to shutdown: %v", err)
		}

		fmt.Println("Shutdown complete")
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every configured path once and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Paths) == 0 {
			return fmt.Errorf("no paths configured")
		}

		log.Init(log.Config{Level: log.WarnLevel, JSONOutput: cfg.Log.JSON})

		// Run against a throwaway data dir so a check never touches
		// the daemon's history.
		cfg.DataDir, err = os.MkdirTemp("", "meshroute-check-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(cfg.DataDir)

		mgr, err := manager.NewManager(cfg)
		if err != nil {
			return err
		}
		defer mgr.Stop()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		for _, pc := range cfg.Paths {
			path := pc.Path()
			if _, err := mgr.Monitor().CheckPathHealth(ctx, path.ID, path.Target); err != nil {
				return fmt.Errorf("probing path %d: %v", pc.ID, err)
			}
		}

		out, err := export.TextRenderer{}.RenderHealth(mgr.Snapshotter().HealthSnapshot())
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
