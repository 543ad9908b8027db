// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/greentic/messaging-providers/internal/certs"
)

// EndpointStatus is the probe result for one serve endpoint.
type EndpointStatus struct {
	Component string `json:"component"`
	URL       string `json:"url"`
	Running   bool   `json:"running"`
	Health    string `json:"health,omitempty"`
	Providers int    `json:"providers,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

type statusConfig struct {
	addr        string
	metricsAddr string
	timeout     time.Duration
	caFile      string
	jsonOutput  bool
}

func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running gateway",
		Long:  `Probe the gateway provider listing and the observability health endpoints of a running serve process.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", "http://localhost:8080", "gateway base URL")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "http://127.0.0.1:9100", "observability base URL (empty to skip)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "per-request timeout")
	cmd.Flags().StringVar(&cfg.caFile, "ca-file", "", "CA certificate to trust for an https gateway (serve --tls-dir writes root-ca.crt)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client := &http.Client{Timeout: cfg.timeout}
	if cfg.caFile != "" {
		pool, err := certs.CertPool(cfg.caFile)
		if err != nil {
			return err
		}
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		}
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	statuses := []EndpointStatus{queryGateway(ctx, client, cfg.addr)}
	if cfg.metricsAddr != "" {
		statuses = append(statuses, queryHealth(ctx, client, cfg.metricsAddr))
	}

	out := cmd.OutOrStdout()
	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	_, err := fmt.Fprint(out, formatStatusTable(statuses))
	return err
}

func queryGateway(ctx context.Context, client *http.Client, base string) EndpointStatus {
	status := EndpointStatus{Component: "gateway", URL: endpointURL(base, "/v1/providers/")}

	start := time.Now()
	body, code, err := fetch(ctx, client, status.URL)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.LatencyMS = time.Since(start).Milliseconds()
	status.Running = true
	if code != http.StatusOK {
		status.Health = fmt.Sprintf("http %d", code)
		return status
	}

	var listing struct {
		Providers []json.RawMessage `json:"providers"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		status.Health = "unknown"
		status.Error = fmt.Sprintf("failed to decode provider listing: %v", err)
		return status
	}
	status.Health = "healthy"
	status.Providers = len(listing.Providers)
	return status
}

func queryHealth(ctx context.Context, client *http.Client, base string) EndpointStatus {
	status := EndpointStatus{Component: "observability", URL: endpointURL(base, "/healthz/readiness")}

	start := time.Now()
	if _, _, err := fetch(ctx, client, endpointURL(base, "/healthz/liveness")); err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Running = true

	_, code, err := fetch(ctx, client, status.URL)
	status.LatencyMS = time.Since(start).Milliseconds()
	switch {
	case err != nil:
		status.Health = "unknown"
		status.Error = err.Error()
	case code == http.StatusOK:
		status.Health = "ready"
	default:
		status.Health = "not ready"
	}
	return status
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// endpointURL joins base and path, adding http:// to a bare host:port.
func endpointURL(base, path string) string {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/") + path
}

func formatStatusTable(statuses []EndpointStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tHEALTH\tPROVIDERS\tLATENCY")
	_, _ = fmt.Fprintln(w, "---------\t------\t------\t---------\t-------")

	for _, s := range statuses {
		if !s.Running {
			reason := "not running"
			if s.Error != "" {
				reason = s.Error
			}
			_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t-\t%s\n", s.Component, reason)
			continue
		}
		providers := "-"
		if s.Component == "gateway" {
			providers = fmt.Sprintf("%d", s.Providers)
		}
		_, _ = fmt.Fprintf(w, "%s\trunning\t%s\t%s\t%dms\n", s.Component, s.Health, providers, s.LatencyMS)
	}

	_ = w.Flush()
	return string(buf)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
