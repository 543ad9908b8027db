// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package plugin

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Kind identifies how a plugin is run.
type Kind string

// Plugin kinds.
const (
	// KindBuiltin binds the manifest to a provider compiled into the host.
	KindBuiltin Kind = "builtin"
	// KindBinary launches the plugin as a go-plugin executable.
	KindBinary Kind = "binary"
)

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name            string        `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version         string        `yaml:"version" json:"version" jsonschema:"minLength=1"`
	ProviderType    string        `yaml:"provider_type" json:"provider_type" jsonschema:"pattern=^[a-z][a-z0-9_]*(\\.[a-z0-9_]+)+$"`
	Requires        string        `yaml:"requires,omitempty" json:"requires,omitempty"`
	Capabilities    []string      `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Ops             []string      `yaml:"ops,omitempty" json:"ops,omitempty"`
	ConfigSchemaRef string        `yaml:"config_schema_ref,omitempty" json:"config_schema_ref,omitempty"`
	StateSchemaRef  string        `yaml:"state_schema_ref,omitempty" json:"state_schema_ref,omitempty"`
	BinaryPlugin    *BinaryConfig `yaml:"binary-plugin,omitempty" json:"binary-plugin,omitempty"`
}

// BinaryConfig holds binary plugin configuration.
type BinaryConfig struct {
	Executable string `yaml:"executable" json:"executable"`
}

// Kind reports how the plugin is run.
func (m *Manifest) Kind() Kind {
	if m.BinaryPlugin != nil {
		return KindBinary
	}
	return KindBuiltin
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// providerTypePattern matches dotted provider types such as
// "messaging.slack.api".
var providerTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)+$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", m.Version, err)
	}
	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return fmt.Errorf("requires %q is not a version constraint: %w", m.Requires, err)
		}
	}

	if !providerTypePattern.MatchString(m.ProviderType) {
		return fmt.Errorf("provider_type %q must be a dotted lowercase name such as messaging.slack.api", m.ProviderType)
	}

	for i, c := range m.Capabilities {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("capability %d is empty", i)
		}
		if _, err := glob.Compile(c, '.'); err != nil {
			return fmt.Errorf("capability %d (%q): %w", i, c, err)
		}
	}

	seen := make(map[string]bool, len(m.Ops))
	for _, op := range m.Ops {
		if strings.TrimSpace(op) == "" {
			return fmt.Errorf("ops must not contain empty names")
		}
		if seen[op] {
			return fmt.Errorf("op %q is listed twice", op)
		}
		seen[op] = true
	}

	if m.BinaryPlugin != nil {
		if m.BinaryPlugin.Executable == "" {
			return fmt.Errorf("binary-plugin.executable is required")
		}
		if len(m.Ops) == 0 {
			return fmt.Errorf("ops are required for binary plugins")
		}
	}

	return nil
}

// CheckHost reports whether the plugin accepts hostVersion. A manifest
// without requires accepts every host.
func (m *Manifest) CheckHost(hostVersion string) error {
	if m.Requires == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return fmt.Errorf("invalid version constraint %s: %w", m.Requires, err)
	}
	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return fmt.Errorf("invalid host version %s: %w", hostVersion, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("host version %s does not satisfy %s", hostVersion, m.Requires)
	}
	return nil
}

// UnsupportedOps returns the listed ops that supports rejects, in
// manifest order.
func (m *Manifest) UnsupportedOps(supports func(op string) bool) []string {
	var missing []string
	for _, op := range m.Ops {
		if !supports(op) {
			missing = append(missing, op)
		}
	}
	return slices.Clip(missing)
}
