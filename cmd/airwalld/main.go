// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command airwalld runs the wireless profile registry daemon: it keeps
// the authoritative set of saved network profiles in memory, persists
// them to SQLite, and serves the registry over local HTTP.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"grimm.is/airwall/internal/api"
	"grimm.is/airwall/internal/config"
	"grimm.is/airwall/internal/driver"
	"grimm.is/airwall/internal/events"
	"grimm.is/airwall/internal/eviction"
	"grimm.is/airwall/internal/linking"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/macrand"
	"grimm.is/airwall/internal/manager"
	"grimm.is/airwall/internal/merge"
	"grimm.is/airwall/internal/metrics"
	"grimm.is/airwall/internal/permission"
	"grimm.is/airwall/internal/persist"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/selection"
	"grimm.is/airwall/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/airwall/airwall.yaml", "Path to YAML config file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.SetVerbose(*verbose || cfg.Debug)
	logger := logging.WithComponent("airwalld")

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
		return err
	}
	durable, err := persist.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer durable.Close()

	secret, err := loadOrCreateSecret(cfg.Mac.SecretFile)
	if err != nil {
		return err
	}
	deriver, err := macrand.NewHKDFDeriver(secret)
	if err != nil {
		return err
	}

	dir := permission.NewStaticDirectory(
		cfg.Identity.Settings,
		cfg.Identity.SetupWizard,
		cfg.Identity.NetworkService,
		cfg.Identity.LockdownOverride,
		cfg.Identity.OrgAdminUIDs)
	gate := permission.NewGate(dir)
	gate.Lockdown = cfg.Lockdown

	st := store.New(0, nil)
	scans := store.NewScanCache()
	bus := events.NewBus()
	links := linking.New(linking.Config{
		Enabled:               cfg.Linking.Enabled,
		RequireSameCredential: cfg.Linking.RequireSameCredential,
		BSSIDMatch:            cfg.Linking.BSSIDMatch,
	}, scans)

	// The scheduler's flush runs on the manager goroutine; the runner
	// pointer is assigned before anything can schedule a write.
	var runner *manager.Runner
	sched := persist.NewScheduler(cfg.SaveDelay, func() error {
		var saveErr error
		if err := runner.Do(context.Background(), func(m *manager.Manager) {
			saveErr = m.SaveToStore(context.Background())
		}); err != nil {
			return err
		}
		return saveErr
	})

	engine := merge.NewEngine(st, scans, gate, links,
		eviction.New(eviction.Config{
			MaxProfiles: cfg.Quota.MaxProfiles,
			MaxAppAdded: cfg.Quota.MaxAppAdded,
		}, nil), bus, sched)

	mets := metrics.NewMetrics()
	mets.RegisterMetrics()

	// No radio is managed in-process; the bridge is swapped in by the
	// platform integration.
	var bridge driver.Bridge = driver.Noop{}
	macCfg := macConfig(cfg)
	macCfg.Supported = macCfg.Supported && bridge.Capabilities().Has(driver.CapMacRandomization)

	mgr := manager.New(manager.Deps{
		Store:    st,
		Scans:    scans,
		Engine:   engine,
		Gate:     gate,
		Machine:  selection.NewMachine(bus, selectionOverrides(cfg, logger)),
		Macs:     macrand.New(macCfg, deriver, durable),
		Linker:   links,
		Bus:      bus,
		Durable:  durable,
		MacStore: durable,
		Saver:    sched,
		Metrics:  mets,
		Bridge:   bridge,
		Debug:    cfg.Debug,
	})

	runner = manager.NewRunner(mgr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	var loadErr error
	if err := runner.Do(ctx, func(m *manager.Manager) {
		loadErr = m.LoadFromStore(ctx)
		if loadErr == nil {
			m.IncrementRebootsSinceUse()
		}
	}); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}

	server := api.NewServer(runner, dir)
	server.Start(cfg.Listen)
	logger.Info("airwalld running", "listen", cfg.Listen, "store", cfg.StorePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	server.Stop()
	if err := sched.FlushNow(); err != nil {
		logger.Error("final flush failed", "error", err)
	}
	sched.Stop()
	return nil
}

// loadOrCreateSecret reads the device secret used to derive stable MAC
// addresses, generating one on first boot.
func loadOrCreateSecret(path string) ([]byte, error) {
	if path == "" {
		path = config.Default().Mac.SecretFile
	}
	if data, err := os.ReadFile(path); err == nil && len(data) >= 16 {
		return data, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, err
	}
	return secret, nil
}

func macConfig(cfg *config.Config) macrand.Config {
	toSet := func(keys []string) map[string]bool {
		if len(keys) == 0 {
			return nil
		}
		set := make(map[string]bool, len(keys))
		for _, k := range keys {
			set[k] = true
		}
		return set
	}
	return macrand.Config{
		Supported:           cfg.Mac.Supported,
		ForceNonPersistent:  cfg.Mac.ForceNonPersistent,
		OpenNetworkRotation: cfg.Mac.OpenNetworkRotation,
		Allowlist:           toSet(cfg.Mac.Allowlist),
		Blocklist:           toSet(cfg.Mac.Blocklist),
	}
}

// selectionOverrides translates configured disable rules into the
// machine's table. Unknown reasons are skipped with a warning so a
// typo'd config does not take the daemon down.
func selectionOverrides(cfg *config.Config, logger *logging.Logger) map[profile.DisableReason]selection.Rule {
	if len(cfg.Selection) == 0 {
		return nil
	}
	out := make(map[profile.DisableReason]selection.Rule, len(cfg.Selection))
	for _, r := range cfg.Selection {
		reason, ok := profile.ParseDisableReason(r.Reason)
		if !ok || reason == profile.DisableReasonNone {
			logger.Warn("ignoring selection rule with unknown reason", "reason", r.Reason)
			continue
		}
		rule := selection.Rule{Threshold: r.Threshold, Duration: r.Timeout}
		if r.Permanent {
			rule.Duration = selection.Permanent
		} else if r.Timeout == 0 {
			if def, ok := selection.DefaultRule(reason); ok {
				rule.Duration = def.Duration
			}
		}
		out[reason] = rule
	}
	return out
}
