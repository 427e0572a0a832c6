// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgerun/edgerun/envconfig"
	"github.com/edgerun/edgerun/logutil"
	"github.com/edgerun/edgerun/model"
	"github.com/edgerun/edgerun/runner"
	"github.com/edgerun/edgerun/version"
)

// Serve startet den HTTP-Server und blockiert bis SIGINT/SIGTERM
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	backends := make([]string, 0)
	for _, b := range model.DefaultRegistry.Backends() {
		backends = append(backends, b.String())
	}
	slog.Info("available backends", "backends", backends)

	metrics := NewMetrics()
	rt := runner.New(runner.WithRunObserver(metrics.ObserveRun))
	s := New(rt, ln.Addr(), metrics)

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	ctx, done := context.WithCancel(context.Background())

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: h}

	// listen for a ctrl+c and unload all models
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		if err := rt.Close(); err != nil {
			slog.Warn("closing models", "error", err)
		}
		done()
	}()

	err = srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ctx.Done()
	return nil
}
