// Package server orchestrates the gateway: COMMS client, route table,
// handler registry, dispatcher, and the HTTP listener.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/cluster-gateway/internal/config"
	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/dispatch"
	"github.com/morezero/cluster-gateway/pkg/handlers"
	"github.com/morezero/cluster-gateway/pkg/handlers/clusters"
	"github.com/morezero/cluster-gateway/pkg/handlers/containermanagers"
	"github.com/morezero/cluster-gateway/pkg/handlers/hosts"
	"github.com/morezero/cluster-gateway/pkg/handlers/networks"
	"github.com/morezero/cluster-gateway/pkg/routing"
)

const logPrefix = "server:server"

// shutdownTimeout bounds the drain of in-flight HTTP requests.
const shutdownTimeout = 10 * time.Second

// BuildDispatcher assembles the route table and handler registry for
// every API collection and returns a dispatcher over them. The caller
// attaches a bus client before serving.
func BuildDispatcher() (*dispatch.Dispatcher, error) {
	table := routing.NewTable()
	for _, register := range []func(*routing.Table) error{
		clusters.Register,
		containermanagers.Register,
		hosts.Register,
		networks.Register,
	} {
		if err := register(table); err != nil {
			return nil, fmt.Errorf("%s - failed to register routes: %w", logPrefix, err)
		}
	}

	registry := handlers.NewRegistry(
		clusters.Collection(),
		containermanagers.Collection(),
		hosts.Collection(),
		networks.Collection(),
	)

	return dispatch.NewDispatcher(table, registry), nil
}

// Run starts the gateway, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevelFromString(cfg.LogLevel),
	})))

	slog.Info(fmt.Sprintf("%s - Starting cluster-gateway", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Assemble routes, handlers, and the dispatcher
	disp, err := BuildDispatcher()
	if err != nil {
		return err
	}

	// Step 2: Connect to the bus
	nc, err := bus.Connect(bus.ConnectConfig{
		URL:           cfg.COMMSURL,
		Name:          cfg.COMMSName,
		ReconnectWait: cfg.COMMSReconnectWait,
		MaxReconnects: cfg.COMMSMaxReconnects,
	})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to bus: %w", logPrefix, err)
	}
	defer nc.Close()
	slog.Info(fmt.Sprintf("%s - Connected to bus at %s", logPrefix, cfg.COMMSURL))

	client := bus.NewClient(nc, cfg.StorageSubject, cfg.RequestTimeout)
	disp.AttachClient(client)

	// Step 3: Storage service version handshake. A mismatch is logged,
	// not fatal; storaged may simply not be up yet.
	checkStorageVersion(ctx, client, cfg.StorageVersionConstraint)

	// Step 4: Start the HTTP listener
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: disp,
	}
	serveErr := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSCertFile != "" {
			slog.Info(fmt.Sprintf("%s - Listening on https://%s", logPrefix, httpServer.Addr))
			err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			slog.Info(fmt.Sprintf("%s - Listening on http://%s", logPrefix, httpServer.Addr))
			err = httpServer.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	slog.Info(fmt.Sprintf("%s - Gateway is ready", logPrefix))

	// Wait for shutdown signal; SIGHUP reloads the handler registry
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		select {
		case err := <-serveErr:
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				slog.Info(fmt.Sprintf("%s - Received SIGHUP, reloading handlers", logPrefix))
				disp.Reload()
				continue
			}
			slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

			shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
			}
			nc.Drain()

			slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
			return nil
		}
	}
}

// checkStorageVersion asks storaged for its version and checks it against
// the configured constraint.
func checkStorageVersion(ctx context.Context, client *bus.Client, constraint string) {
	versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	version, err := client.Storage().Version(versionCtx)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - storage version check failed: %v", logPrefix, err))
		return
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - invalid storage version constraint %q: %v", logPrefix, constraint, err))
		return
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - storage reported unparsable version %q: %v", logPrefix, version, err))
		return
	}

	if !c.Check(v) {
		slog.Warn(fmt.Sprintf("%s - storage version %s outside supported range %q", logPrefix, version, constraint))
		return
	}
	slog.Info(fmt.Sprintf("%s - Storage service version %s accepted", logPrefix, version))
}
