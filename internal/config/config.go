// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the daemon configuration. Missing files fall
// back to defaults so a bare install comes up with sane behavior.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"grimm.is/airwall/internal/errors"
)

// QuotaConfig bounds the registry size.
type QuotaConfig struct {
	// MaxProfiles caps the whole registry. Zero means unlimited.
	MaxProfiles int `yaml:"max_profiles,omitempty"`
	// MaxAppAdded caps profiles created by unprivileged apps separately.
	MaxAppAdded int `yaml:"max_app_added,omitempty"`
}

// LinkingConfig controls the profile linking engine.
type LinkingConfig struct {
	Enabled               bool `yaml:"enabled"`
	RequireSameCredential bool `yaml:"require_same_credential,omitempty"`
	BSSIDMatch            bool `yaml:"bssid_match,omitempty"`
}

// MacConfig controls MAC randomization policy.
type MacConfig struct {
	Supported           bool     `yaml:"supported"`
	ForceNonPersistent  bool     `yaml:"force_non_persistent,omitempty"`
	OpenNetworkRotation bool     `yaml:"open_network_rotation,omitempty"`
	Allowlist           []string `yaml:"allowlist,omitempty"`
	Blocklist           []string `yaml:"blocklist,omitempty"`
	// SecretFile holds the device secret used to derive stable
	// addresses. Created with a random secret when absent.
	SecretFile string `yaml:"secret_file,omitempty"`
}

// SelectionRule overrides one disable reason's policy.
type SelectionRule struct {
	Reason    string        `yaml:"reason"`
	Threshold int           `yaml:"threshold"`
	// Timeout of zero with Permanent false keeps the default duration;
	// Permanent true disables until explicitly re-enabled.
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	Permanent bool          `yaml:"permanent,omitempty"`
}

// IdentityConfig names the privileged caller identities.
type IdentityConfig struct {
	Settings         []string `yaml:"settings,omitempty"`
	SetupWizard      []string `yaml:"setup_wizard,omitempty"`
	NetworkService   []string `yaml:"network_service,omitempty"`
	LockdownOverride []string `yaml:"lockdown_override,omitempty"`
	OrgAdminUIDs     []int    `yaml:"org_admin_uids,omitempty"`
}

// Config is the daemon configuration.
type Config struct {
	// StorePath is the registry database location.
	StorePath string `yaml:"store_path,omitempty"`
	// SaveDelay debounces durable writes.
	SaveDelay time.Duration `yaml:"save_delay,omitempty"`
	// Debug makes store read failures fatal instead of starting empty.
	Debug bool `yaml:"debug,omitempty"`
	// Listen is the HTTP API address.
	Listen string `yaml:"listen,omitempty"`

	Quota     QuotaConfig     `yaml:"quota,omitempty"`
	Linking   LinkingConfig   `yaml:"linking,omitempty"`
	Mac       MacConfig       `yaml:"mac,omitempty"`
	Selection []SelectionRule `yaml:"selection,omitempty"`
	Identity  IdentityConfig  `yaml:"identity,omitempty"`

	// Lockdown freezes org-admin-created profiles.
	Lockdown bool `yaml:"lockdown,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StorePath: "/var/lib/airwall/registry.db",
		SaveDelay: 10 * time.Second,
		Listen:    "127.0.0.1:8947",
		Quota: QuotaConfig{
			MaxProfiles: 1000,
			MaxAppAdded: 512,
		},
		Linking: LinkingConfig{
			Enabled:    true,
			BSSIDMatch: true,
		},
		Mac: MacConfig{
			Supported:  true,
			SecretFile: "/var/lib/airwall/secret",
		},
		Identity: IdentityConfig{
			Settings:    []string{"settings"},
			SetupWizard: []string{"setupwizard"},
		},
	}
}

// LoadFrom reads the configuration at path over the defaults. A missing
// file returns the defaults unchanged.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, errors.KindUnavailable, "read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return errors.New(errors.KindValidation, "store_path must not be empty")
	}
	if c.SaveDelay < 0 {
		return errors.New(errors.KindValidation, "save_delay must not be negative")
	}
	if c.Quota.MaxProfiles < 0 || c.Quota.MaxAppAdded < 0 {
		return errors.New(errors.KindValidation, "quotas must not be negative")
	}
	for _, r := range c.Selection {
		if r.Reason == "" {
			return errors.New(errors.KindValidation, "selection rule without reason")
		}
		if r.Threshold < 1 {
			return errors.Errorf(errors.KindValidation, "selection rule %q: threshold must be at least 1", r.Reason)
		}
		if r.Timeout < 0 {
			return errors.Errorf(errors.KindValidation, "selection rule %q: timeout must not be negative", r.Reason)
		}
	}
	return nil
}
