package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tomaslejdung/sharehost/pkg/capture"
	sig "github.com/tomaslejdung/sharehost/pkg/signal"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()
	var configPath string

	load := func() (*Config, error) {
		return LoadConfig(v, configPath)
	}

	root := &cobra.Command{
		Use:   "sharehost",
		Short: "Share your screen with a phone or browser over WebRTC",
		Long: `sharehost hosts screen-sharing sessions. It issues a room code, waits for a
viewer to join, lets you accept the device and then streams the chosen source.

Examples:
  sharehost                  # interactive host
  sharehost serve            # headless host with the control API
  sharehost signal --port 9000
  sharehost sources`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runTUI(cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/sharehost/config.yaml)")
	flags.String("mode", SignalModeLocal, "signaling mode: local or remote")
	flags.IntP("port", "p", 8080, "signal server port")
	flags.String("signal", DefaultSignalServer, "remote signal server URL")
	flags.String("control", "127.0.0.1:8090", "control API listen address (empty disables)")
	flags.String("turn", "", "TURN server URL (e.g., turn:turn.example.com:3478)")
	flags.String("turn-user", "", "TURN server username")
	flags.String("turn-pass", "", "TURN server password")
	flags.Bool("force-relay", false, "force TURN relay (disable direct P2P)")
	flags.String("log-level", "info", "log level")
	bindFlags(v, root)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the interactive host (default)",
			RunE:  root.RunE,
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run the host headless, driven by the control API",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return runHeadless(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "signal",
			Short: "Run the signal server only",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return runSignalServer(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "sources",
			Short: "List configured capture sources",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return listSources(cmd.Context(), cfg)
			},
		},
	)
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	for key, name := range map[string]string{
		"signal.mode":     "mode",
		"signal.port":     "port",
		"signal.url":      "signal",
		"control.addr":    "control",
		"ice.turn_server": "turn",
		"ice.turn_user":   "turn-user",
		"ice.turn_pass":   "turn-pass",
		"ice.force_relay": "force-relay",
		"log.level":       "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runHeadless(parent context.Context, cfg *Config) error {
	closeLog, err := setupLogging(cfg.Log, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := interruptContext(parent)
	defer stop()

	app := newApp(cfg)
	if err := app.Start(ctx); err != nil {
		return err
	}
	log.Info().Str("module", "main").Str("share", app.shareBase()).Msg("host ready")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Shutdown(shutdownCtx)
	return nil
}

func runSignalServer(parent context.Context, cfg *Config) error {
	closeLog, err := setupLogging(cfg.Log, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := interruptContext(parent)
	defer stop()

	server := sig.NewServer()
	addr := fmt.Sprintf(":%d", cfg.Signal.Port)
	fmt.Printf("Starting signal server on http://localhost%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	errCh := make(chan error, 1)
	go func() { errCh <- server.StartServer(addr) }()
	select {
	case err := <-errCh:
		return fmt.Errorf("signal server: %w", err)
	case <-ctx.Done():
		return nil
	}
}

func listSources(ctx context.Context, cfg *Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dir := capture.NewDirectory(&capture.StaticEnumerator{Sources: cfg.Sources, Displays: cfg.Displays})
	if err := dir.Refresh(ctx); err != nil {
		return err
	}

	sources := dir.Sources()
	if len(sources) == 0 {
		fmt.Println("No sources configured. Add a sources: list to the config file.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "ID", "Name", "Display", "Size"})
	for i, s := range sources {
		size := "-"
		if s.DisplayID != "" {
			if sz, ok := dir.DisplaySize(s.DisplayID); ok {
				size = strconv.Itoa(sz.Width) + "x" + strconv.Itoa(sz.Height)
			}
		}
		t.AppendRow(table.Row{i + 1, s.ID, s.Name, s.DisplayID, size})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
