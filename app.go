package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tomaslejdung/sharehost/pkg/capture"
	"github.com/tomaslejdung/sharehost/pkg/control"
	"github.com/tomaslejdung/sharehost/pkg/coordinator"
	"github.com/tomaslejdung/sharehost/pkg/peer"
	"github.com/tomaslejdung/sharehost/pkg/settings"
	"github.com/tomaslejdung/sharehost/pkg/signal"
)

// App is a fully wired host: coordinator, signaling, peers and the control surface.
type App struct {
	cfg      *Config
	coord    *coordinator.Coordinator
	settings *settings.Store
	peers    *peer.Manager
	host     *signal.Host
	server   *signal.Server

	signalSrv  *http.Server
	controlSrv *http.Server
}

func newApp(cfg *Config) *App {
	a := &App{cfg: cfg, peers: peer.NewManager(cfg.ICE.Peer())}

	hostCfg := signal.HostConfig{Peers: a.peers}
	if cfg.Signal.Local() {
		a.server = signal.NewServer()
		hostCfg.Server = a.server
	} else {
		hostCfg.RemoteURL = cfg.Signal.URL
	}
	a.host = signal.NewHost(hostCfg)

	sources := capture.NewDirectory(&capture.StaticEnumerator{Sources: cfg.Sources, Displays: cfg.Displays})
	a.coord = coordinator.New(coordinator.Config{Signaler: a.host, Sources: sources})

	path, err := settings.DefaultPath()
	if err != nil {
		path = filepath.Join(os.TempDir(), "sharehost", "settings.json")
		log.Warn().Err(err).Str("module", "main").Str("path", path).Msg("no config dir, settings kept in temp dir")
	}
	a.settings = settings.NewStore(path)
	return a
}

// Start binds the listeners and serves in the background.
func (a *App) Start(ctx context.Context) error {
	if err := a.coord.RefreshSources(ctx); err != nil {
		log.Warn().Err(err).Str("module", "main").Msg("initial source enumeration failed")
	}

	if a.server != nil {
		addr := fmt.Sprintf(":%d", a.cfg.Signal.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen signal %s: %w", addr, err)
		}
		a.signalSrv = &http.Server{Handler: a.server.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go a.serve("signal", a.signalSrv, ln)
	}

	if a.cfg.Control.Addr != "" {
		ln, err := net.Listen("tcp", a.cfg.Control.Addr)
		if err != nil {
			return fmt.Errorf("listen control %s: %w", a.cfg.Control.Addr, err)
		}
		router := control.NewRouter(control.Config{
			Coordinator: a.coord,
			Settings:    a.settings,
			Signal:      control.SignalInfo{Port: a.cfg.Signal.Port, ShareURL: a.shareBase()},
		})
		a.controlSrv = &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
		go a.serve("control", a.controlSrv, ln)
	}
	return nil
}

func (a *App) serve(name string, srv *http.Server, ln net.Listener) {
	log.Info().Str("module", "main").Str("server", name).Str("addr", ln.Addr().String()).Msg("listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("module", "main").Str("server", name).Msg("server stopped")
	}
}

// Shutdown tears down every session and stops the listeners.
func (a *App) Shutdown(ctx context.Context) {
	a.coord.DisconnectAllAndReset()
	a.host.Close()
	a.peers.CloseAll()
	for _, srv := range []*http.Server{a.controlSrv, a.signalSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("server shutdown")
		}
	}
}

// shareBase is the viewer-facing base URL, without a room.
func (a *App) shareBase() string {
	if a.server != nil {
		return fmt.Sprintf("http://%s:%d", localIP(), a.cfg.Signal.Port)
	}
	u := a.cfg.Signal.URL
	u = strings.Replace(u, "wss://", "https://", 1)
	u = strings.Replace(u, "ws://", "http://", 1)
	return strings.TrimSuffix(u, "/")
}

// ShareURL is the link a viewer opens to join room.
func (a *App) ShareURL(room string) string {
	if room == "" {
		return ""
	}
	return a.shareBase() + "/" + room
}

// localIP returns the first non-loopback IPv4 address, or "localhost".
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}
