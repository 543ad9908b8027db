// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"golang.org/x/term"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/capability/httpcap"
	"github.com/greentic/messaging-providers/internal/capability/secretstore"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/plugin"
	"github.com/greentic/messaging-providers/internal/plugin/goplugin"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/builtin"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
	"github.com/greentic/messaging-providers/internal/store"
	"github.com/greentic/messaging-providers/internal/xdg"
)

// pluginAPIVersion is the host version plugin manifests are checked
// against with their requires constraint.
const pluginAPIVersion = "0.4.0"

// envSecretsPassphrase supplies the encrypted secrets passphrase without a
// terminal prompt.
const envSecretsPassphrase = "MSGPROV_SECRETS_PASSPHRASE"

// host is the provider runtime assembled for one command.
type host struct {
	registry *provider.Registry
	disp     *provider.Dispatcher
	state    capability.StateStore
	plugins  *plugin.Manager
	enforcer *capability.Enforcer

	closeState func() error
}

// hostConfig selects how openHost builds the runtime.
type hostConfig struct {
	runtime runtimeconfig.Config
	migrate bool
}

// openHost opens the state store, loads plugin manifests and builds a
// dispatcher over the built-in and binary providers.
func openHost(ctx context.Context, opts *globalOptions, cfg hostConfig) (*host, error) {
	stateURL, err := opts.resolveStateURL()
	if err != nil {
		return nil, err
	}
	backend, err := store.Open(ctx, stateURL, cfg.migrate)
	if err != nil {
		return nil, oops.Code("STATE_OPEN_FAILED").With("state", redactURL(stateURL)).Wrap(err)
	}

	secrets, err := opts.secretStore()
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	pluginsDir, err := opts.resolvePluginsDir()
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	registry := builtin.Registry()
	enforcer := capability.NewEnforcer()
	mgr := plugin.NewManager(pluginsDir, registry,
		plugin.WithHostVersion(pluginAPIVersion),
		plugin.WithEnforcer(enforcer),
		plugin.WithBinaryHost(goplugin.NewHost(enforcer)),
	)
	if err := mgr.LoadAll(ctx); err != nil {
		_ = backend.Close()
		return nil, oops.Code("PLUGIN_LOAD_FAILED").With("dir", pluginsDir).Wrap(err)
	}

	dispOpts := []provider.DispatcherOption{
		provider.WithRuntimeConfig(cfg.runtime),
		provider.WithCapabilities(capability.Set{
			HTTP:      httpcap.New(cfg.runtime),
			Secrets:   secrets,
			State:     backend.State,
			Telemetry: capability.SlogTelemetry{Logger: slog.Default()},
		}),
	}
	if opts.enforceGrants {
		dispOpts = append(dispOpts, provider.WithEnforcer(enforcer))
	}
	disp, err := provider.NewDispatcher(registry, dispOpts...)
	if err != nil {
		_ = mgr.Close(ctx)
		_ = backend.Close()
		return nil, err
	}

	slog.DebugContext(ctx, "provider host ready",
		"state", redactURL(stateURL),
		"plugins_dir", pluginsDir,
		"plugins", len(mgr.ListPlugins()),
		"enforce_grants", opts.enforceGrants)

	return &host{
		registry:   registry,
		disp:       disp,
		state:      backend.State,
		plugins:    mgr,
		enforcer:   enforcer,
		closeState: backend.Close,
	}, nil
}

// Close stops plugin processes and releases the state store.
func (h *host) Close(ctx context.Context) error {
	var errs []error
	if err := h.plugins.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.closeState(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (o *globalOptions) resolveStateURL() (string, error) {
	if o.stateURL != "" {
		return o.stateURL, nil
	}
	path, err := xdg.StateDB()
	if err != nil {
		return "", err
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	return "sqlite://" + path, nil
}

func (o *globalOptions) resolvePluginsDir() (string, error) {
	if o.pluginsDir != "" {
		return o.pluginsDir, nil
	}
	return xdg.PluginsDir()
}

func (o *globalOptions) resolveSecretsFile() (path string, explicit bool, err error) {
	if o.secretsFile != "" {
		return o.secretsFile, true, nil
	}
	path, err = xdg.SecretsFile()
	return path, false, err
}

// secretStore chains the environment with the encrypted secrets file when
// one exists. An explicitly named file must exist.
func (o *globalOptions) secretStore() (capability.SecretStore, error) {
	stores := []capability.SecretStore{secretstore.NewEnv(o.secretsEnvPrefix)}

	path, explicit, err := o.resolveSecretsFile()
	if err != nil {
		return nil, err
	}
	switch _, statErr := os.Stat(path); {
	case statErr == nil:
		stores = append(stores, secretstore.NewEncryptedFile(path, readPassphrase))
	case explicit:
		return nil, oops.Code(secretstore.CodeSecretsFile).With("path", path).Wrapf(statErr, "secrets file")
	}
	return secretstore.NewChain(stores...), nil
}

// readPassphrase reads the secrets passphrase from the environment or,
// with echo disabled, from the terminal.
func readPassphrase() (string, error) {
	if p := os.Getenv(envSecretsPassphrase); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", oops.Code(secretstore.CodeSecretsFile).
			Errorf("%s is not set and no terminal is available for a passphrase prompt", envSecretsPassphrase)
	}
	fmt.Fprint(os.Stderr, "Secrets passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", oops.Code(secretstore.CodeSecretsFile).Wrapf(err, "read passphrase")
	}
	return string(b), nil
}

// tenantFlags binds --env, --tenant and --team.
type tenantFlags struct {
	env    string
	tenant string
	team   string
}

func (f *tenantFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.env, "env", "default", "environment id")
	fs.StringVar(&f.tenant, "tenant", "default", "tenant id")
	fs.StringVar(&f.team, "team", "", "team within the tenant")
}

func (f *tenantFlags) resolve() (core.TenantCtx, error) {
	env, err := core.ParseEnvID(f.env)
	if err != nil {
		return core.TenantCtx{}, err
	}
	tenant, err := core.ParseTenantID(f.tenant)
	if err != nil {
		return core.TenantCtx{}, err
	}
	return core.NewTenantCtx(env, tenant).WithTeam(f.team), nil
}

// readInput returns the JSON document named by path ("-" is stdin) or the
// inline value. Comments and trailing commas are accepted.
func readInput(stdin io.Reader, inline, path, fallback string) ([]byte, error) {
	var raw []byte
	switch {
	case path == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, oops.Code("INPUT_READ_FAILED").Wrapf(err, "read stdin")
		}
		raw = b
	case path != "":
		b, err := os.ReadFile(path) //nolint:gosec // operator supplied path
		if err != nil {
			return nil, oops.Code("INPUT_READ_FAILED").With("path", path).Wrap(err)
		}
		raw = b
	case inline != "":
		raw = []byte(inline)
	default:
		raw = []byte(fallback)
	}
	out := jsonc.ToJSON(raw)
	if !json.Valid(out) {
		return nil, oops.Code("INPUT_INVALID").Errorf("input is not valid JSON")
	}
	return out, nil
}

// redactURL drops credentials from a state URL before logging it.
func redactURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return u
}
