// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package selection drives the per-profile enable/disable lifecycle.
// Failures accumulate per reason; a profile is disabled only once a
// reason's counter reaches its threshold, and temporary disables expire
// on their own.
package selection

import (
	"time"

	"grimm.is/airwall/internal/clock"
	"grimm.is/airwall/internal/events"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/profile"
)

// Permanent marks a rule whose disable never expires.
const Permanent = time.Duration(-1)

// Rule is one reason's disable policy: how many strikes before the
// profile is disabled and for how long.
type Rule struct {
	Threshold int
	Duration  time.Duration
}

// defaultRules is the built-in policy table. Association-level flakiness
// gets several strikes and a short timeout; credential and subscription
// problems are permanent because retrying cannot fix them.
var defaultRules = map[profile.DisableReason]Rule{
	profile.DisableAssociationRejection:  {Threshold: 5, Duration: 5 * time.Minute},
	profile.DisableAuthenticationFailure: {Threshold: 5, Duration: 5 * time.Minute},
	profile.DisableDHCPFailure:           {Threshold: 5, Duration: 5 * time.Minute},
	profile.DisableNetworkNotFound:       {Threshold: 2, Duration: 5 * time.Minute},
	profile.DisableNoInternetTemporary:   {Threshold: 1, Duration: 10 * time.Minute},
	profile.DisableNoCredentials:         {Threshold: 3, Duration: Permanent},
	profile.DisableNoInternetPermanent:   {Threshold: 1, Duration: Permanent},
	profile.DisableWrongPassword:         {Threshold: 1, Duration: Permanent},
	profile.DisableNoSubscription:        {Threshold: 1, Duration: Permanent},
	profile.DisableConsecutiveFailures:   {Threshold: 1, Duration: Permanent},
	profile.DisableByUser:                {Threshold: 1, Duration: Permanent},
	profile.DisableByService:             {Threshold: 1, Duration: Permanent},
}

// Machine applies the rule table to profiles and reports transitions on
// the bus. Exactly one event per state transition; repeated failures on
// an already-disabled profile stay silent.
type Machine struct {
	rules  map[profile.DisableReason]Rule
	bus    *events.Bus
	logger *logging.Logger
}

// NewMachine creates a machine. Entries in overrides replace the
// built-in rules per reason.
func NewMachine(bus *events.Bus, overrides map[profile.DisableReason]Rule) *Machine {
	rules := make(map[profile.DisableReason]Rule, len(defaultRules))
	for r, rule := range defaultRules {
		rules[r] = rule
	}
	for r, rule := range overrides {
		rules[r] = rule
	}
	return &Machine{rules: rules, bus: bus, logger: logging.WithComponent("selection")}
}

// Rule returns the active rule for a reason.
func (m *Machine) Rule(r profile.DisableReason) Rule { return m.rules[r] }

// DefaultRule returns the built-in rule for a reason.
func DefaultRule(r profile.DisableReason) (Rule, bool) {
	rule, ok := defaultRules[r]
	return rule, ok
}

// RecordFailure counts a failure against the profile and disables it
// when the reason's threshold is reached. Returns true when the call
// caused a state transition.
func (m *Machine) RecordFailure(p *profile.Profile, r profile.DisableReason) bool {
	rule, ok := m.rules[r]
	if !ok {
		m.logger.Warn("failure with unknown disable reason", "reason", int(r))
		return false
	}
	count := p.Selection.BumpCounter(r)
	if count < rule.Threshold {
		return false
	}
	return m.disable(p, r, rule)
}

// disable moves the profile into the reason's disabled state. Permanent
// rules override a temporary disable; anything else on an already
// disabled profile is a no-op.
func (m *Machine) disable(p *profile.Profile, r profile.DisableReason, rule Rule) bool {
	permanent := rule.Duration == Permanent || rule.Duration < 0
	switch p.Selection.State {
	case profile.StatusPermanentlyDisabled:
		return false
	case profile.StatusTemporarilyDisabled:
		if !permanent {
			return false
		}
	}

	now := clock.Now()
	p.Selection.DisableReason = r
	p.Selection.DisableTime = now
	if permanent {
		p.Selection.State = profile.StatusPermanentlyDisabled
		p.Selection.DisableEndTime = time.Time{}
	} else {
		p.Selection.State = profile.StatusTemporarilyDisabled
		p.Selection.DisableEndTime = now.Add(rule.Duration)
	}

	m.logger.Info("profile disabled",
		"id", int(p.ID), "key", p.Key(), "reason", r.String(), "permanent", permanent)
	ev := events.Event{Type: events.ProfileTemporarilyDisabled, Profile: p.Redacted(), Reason: r}
	if permanent {
		ev.Type = events.ProfilePermanentlyDisabled
	}
	m.bus.Publish(ev)
	return true
}

// Enable re-enables the profile unconditionally, clearing all failure
// counters. Returns true when the profile was disabled.
func (m *Machine) Enable(p *profile.Profile) bool {
	p.Selection.ClearCounters()
	if p.Selection.Enabled() {
		return false
	}
	p.Selection.State = profile.StatusEnabled
	p.Selection.DisableReason = profile.DisableReasonNone
	p.Selection.DisableTime = time.Time{}
	p.Selection.DisableEndTime = time.Time{}

	m.logger.Info("profile enabled", "id", int(p.ID), "key", p.Key())
	m.bus.Publish(events.Event{Type: events.ProfileEnabled, Profile: p.Redacted()})
	return true
}

// TryEnable re-enables a temporarily disabled profile whose timeout has
// elapsed. Permanently disabled profiles only come back through Enable.
func (m *Machine) TryEnable(p *profile.Profile) bool {
	if p.Selection.State != profile.StatusTemporarilyDisabled {
		return false
	}
	if clock.Now().Before(p.Selection.DisableEndTime) {
		return false
	}
	return m.Enable(p)
}
