// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/certs"
	"github.com/greentic/messaging-providers/internal/gateway"
	"github.com/greentic/messaging-providers/internal/observability"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

// Default values for serve command flags.
const (
	defaultGatewayAddr = ":8080"
	defaultMetricsAddr = "127.0.0.1:9100"
)

// serveConfig holds configuration for the serve command.
type serveConfig struct {
	addr        string
	metricsAddr string
	configFile  string
	migrate     bool
	maxBody     int64
	tlsDir      string
	tlsHosts    []string
}

// Validate checks that the configuration is valid.
func (cfg *serveConfig) Validate() error {
	if cfg.addr == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.maxBody <= 0 {
		return fmt.Errorf("max-body-bytes must be positive, got %d", cfg.maxBody)
	}
	return nil
}

// ObservabilityServer is the subset of observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the gateway listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// OnReady is called with the gateway address once it accepts requests.
	OnReady func(addr string)
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the provider gateway",
		Long: `Serve exposes the providers over HTTP: provider listing, describe,
op invocation, webhook ingress and the webchat Direct Line endpoints.
Metrics and health probes are served on a separate address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd, opts, cfg, nil)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.addr, "addr", defaultGatewayAddr, "gateway listen address")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.StringVar(&cfg.configFile, "config", "", "runtime config file (YAML or JSON)")
	fs.BoolVar(&cfg.migrate, "migrate", true, "apply pending migrations to a postgres state store on startup")
	fs.Int64Var(&cfg.maxBody, "max-body-bytes", gateway.DefaultMaxBodyBytes, "maximum request body size")
	fs.StringVar(&cfg.tlsDir, "tls-dir", "", "serve HTTPS with a local CA and certificate kept in this directory")
	fs.StringSliceVar(&cfg.tlsHosts, "tls-host", nil, "extra host names or IPs for the gateway certificate")
	runtimeconfig.BindFlags(fs)

	return cmd
}

// runServeWithDeps starts the gateway with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(cmd *cobra.Command, opts *globalOptions, cfg *serveConfig, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runtime, err := runtimeconfig.Load(cfg.configFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, err := openHost(ctx, opts, hostConfig{runtime: runtime, migrate: cfg.migrate})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer closeCancel()
		if closeErr := h.Close(closeCtx); closeErr != nil {
			slog.Warn("error closing provider host", "error", closeErr)
		}
	}()

	var ready atomic.Bool
	gwOpts := []gateway.Option{gateway.WithMaxBodyBytes(cfg.maxBody)}

	if cfg.metricsAddr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.metricsAddr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer shutdownCancel()
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				slog.Warn("error stopping observability server", "error", stopErr)
			}
		}()
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		gwOpts = append(gwOpts, gateway.WithMetrics(obsServer.Metrics()))
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	ln, err := deps.ListenerFactory("tcp", cfg.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.addr, err)
	}

	if cfg.tlsDir != "" {
		tlsConfig, err := gatewayTLS(cfg)
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsConfig)
	}

	ready.Store(true)
	slog.Info("gateway ready",
		"tls", cfg.tlsDir != "",
		"addr", ln.Addr().String(),
		"providers", len(h.registry.All()),
		"plugins", len(h.plugins.ListPlugins()))
	if deps.OnReady != nil {
		deps.OnReady(ln.Addr().String())
	}

	err = gateway.New(h.disp, gwOpts...).Serve(ctx, ln)
	ready.Store(false)
	if err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

// gatewayTLS loads or issues the gateway certificate in cfg.tlsDir.
func gatewayTLS(cfg *serveConfig) (*tls.Config, error) {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "msgprov"
	}
	tlsConfig, err := certs.Ensure(cfg.tlsDir, instance, cfg.tlsHosts)
	if err != nil {
		return nil, oops.Code("TLS_SETUP_FAILED").With("dir", cfg.tlsDir).Wrap(err)
	}
	slog.Info("gateway certificate ready",
		"ca", filepath.Join(cfg.tlsDir, certs.CAFile),
		"hosts", tlsConfig.Certificates[0].Leaf.DNSNames)
	return tlsConfig, nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
