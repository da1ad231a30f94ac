// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package merge implements the registry's add-or-update pipeline:
// validation, permission checks, folding the external profile into the
// stored one, and the post-success bookkeeping (linking, eviction,
// notifications, scheduling a durable write).
package merge

import (
	"time"

	"grimm.is/airwall/internal/clock"
	"grimm.is/airwall/internal/events"
	"grimm.is/airwall/internal/eviction"
	"grimm.is/airwall/internal/linking"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/permission"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/store"
)

// Status classifies the outcome of an add-or-update request.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidProfile
	StatusInvalidEnterprise
	StatusNoPermission
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidProfile:
		return "invalid_profile"
	case StatusInvalidEnterprise:
		return "invalid_enterprise"
	case StatusNoPermission:
		return "no_permission"
	}
	return "unknown"
}

// Result reports what an add-or-update did.
type Result struct {
	Status Status
	ID     profile.ID
	IsNew  bool

	CredentialChanged bool
	ProxyChanged      bool
	IPChanged         bool
	MacSettingChanged bool

	// Evicted lists profiles removed by the capacity policy as a side
	// effect of this request.
	Evicted []profile.ID
}

// Saver schedules a durable write.
type Saver interface {
	Schedule()
}

// Engine runs the pipeline against the live store.
type Engine struct {
	store   *store.Store
	scans   *store.ScanCache
	gate    *permission.Gate
	links   *linking.Engine
	evictor *eviction.Policy
	bus     *events.Bus
	saver   Saver
	logger  *logging.Logger
}

// NewEngine wires the pipeline together.
func NewEngine(st *store.Store, scans *store.ScanCache, gate *permission.Gate,
	links *linking.Engine, evictor *eviction.Policy, bus *events.Bus, saver Saver) *Engine {
	return &Engine{
		store:   st,
		scans:   scans,
		gate:    gate,
		links:   links,
		evictor: evictor,
		bus:     bus,
		saver:   saver,
		logger:  logging.WithComponent("merge"),
	}
}

// AddOrUpdate folds an externally supplied profile into the registry.
func (e *Engine) AddOrUpdate(c permission.Caller, external *profile.Profile) Result {
	existing := e.store.Match(external)

	// A saved profile overwriting an ephemeral one counts as a fresh
	// add: the ephemeral profile grants no squatting rights.
	overwritten := existing
	if existing != nil && existing.Ephemeral && !external.Ephemeral {
		existing = nil
	} else {
		overwritten = nil
	}

	if st := e.validate(external, existing != nil); st != StatusSuccess {
		return Result{Status: st, ID: profile.InvalidID}
	}
	if st := e.authorize(c, external, existing); st != StatusSuccess {
		return Result{Status: st, ID: profile.InvalidID}
	}

	if overwritten != nil {
		e.logger.Info("saved profile overwrites ephemeral", "key", overwritten.Key())
		e.removeInternal(overwritten)
	}
	if existing == nil {
		return e.add(c, external)
	}
	return e.update(c, external, existing)
}

func (e *Engine) validate(external *profile.Profile, isUpdate bool) Status {
	if external.HasSecurity(profile.SecurityEAP) {
		if err := profile.ValidateEnterprise(external); err != nil {
			e.logger.Warn("rejecting invalid enterprise profile", "ssid", external.SSID, "error", err)
			return StatusInvalidEnterprise
		}
	}
	var err error
	if isUpdate {
		err = profile.ValidateForUpdate(external)
	} else {
		err = profile.ValidateForAdd(external)
	}
	if err != nil {
		e.logger.Warn("rejecting invalid profile", "ssid", external.SSID, "error", err)
		return StatusInvalidProfile
	}
	return StatusSuccess
}

func (e *Engine) authorize(c permission.Caller, external, existing *profile.Profile) Status {
	if existing != nil && !e.gate.CanModify(c, existing) {
		e.logger.Warn("update denied", "key", existing.Key(), "caller", c.Name, "uid", c.UID)
		return StatusNoPermission
	}
	if profile.HasProxyChanged(existing, external) {
		target := existing
		if target == nil {
			target = external
		}
		if !e.gate.CanModifyProxy(c, target) {
			e.logger.Warn("proxy change denied", "caller", c.Name, "uid", c.UID)
			return StatusNoPermission
		}
	}
	if profile.HasMacSettingChanged(existing, external) {
		target := existing
		if target == nil {
			target = external
		}
		if !e.gate.CanSetMacRandomization(c, target, external.FromSuggestion) {
			e.logger.Warn("mac setting change denied", "caller", c.Name, "uid", c.UID)
			return StatusNoPermission
		}
	}
	return StatusSuccess
}

func (e *Engine) add(c permission.Caller, external *profile.Profile) Result {
	now := clock.Now()
	p := external.Clone()
	p.ID = profile.InvalidID
	p.CreatorUID = c.UID
	p.CreatorName = c.Name
	p.LastUpdateUID = c.UID
	p.LastUpdateName = c.Name
	p.LastUpdated = now

	// Server-owned state never crosses the boundary on a create: whatever
	// the caller put in these fields is discarded.
	p.CurrentlyConnected = false
	p.LastConnected = time.Time{}
	p.AssocCount = 0
	p.RebootsSinceUse = 0
	p.ValidatedInternet = false
	p.DefaultGatewayMAC = ""
	p.RandomizedMAC = ""
	p.MacLastModified = time.Time{}
	p.MacExpiry = time.Time{}
	p.Linked = nil

	// New profiles start disabled and come up through the normal enable
	// transition once stored, so listeners see the same notification as
	// any other enable.
	p.Selection = profile.SelectionStatus{
		State:         profile.StatusPermanentlyDisabled,
		DisableReason: profile.DisableByService,
		DisableTime:   now,
	}
	profile.AddUpgradableSecurity(p)

	id, err := e.store.Add(p)
	if err != nil {
		e.logger.Error("store rejected new profile", "key", p.Key(), "error", err)
		return Result{Status: StatusInvalidProfile, ID: profile.InvalidID}
	}
	e.enable(p)

	res := Result{
		Status:            StatusSuccess,
		ID:                id,
		IsNew:             true,
		CredentialChanged: true,
		ProxyChanged:      profile.HasProxyChanged(nil, p),
		IPChanged:         true,
		MacSettingChanged: profile.HasMacSettingChanged(nil, p),
	}
	e.logger.Info("profile added", "id", int(id), "key", p.Key(), "creator", c.Name)
	e.finish(c, p, &res, events.ProfileAdded)
	return res
}

// enable flips a freshly stored profile to enabled, publishing the same
// notification the selection machine would.
func (e *Engine) enable(p *profile.Profile) {
	p.Selection.State = profile.StatusEnabled
	p.Selection.DisableReason = profile.DisableReasonNone
	p.Selection.DisableTime = time.Time{}
	p.Selection.DisableEndTime = time.Time{}
	e.bus.Publish(events.Event{Type: events.ProfileEnabled, Profile: p.Redacted()})
}

func (e *Engine) update(c permission.Caller, external, existing *profile.Profile) Result {
	now := clock.Now()
	merged := profile.MergeExternal(existing, external)
	merged.LastUpdateUID = c.UID
	merged.LastUpdateName = c.Name
	merged.LastUpdated = now
	profile.AddUpgradableSecurity(merged)

	res := Result{
		Status:            StatusSuccess,
		ID:                existing.ID,
		CredentialChanged: !existing.CredentialsEqual(merged),
		ProxyChanged:      profile.HasProxyChanged(existing, merged),
		IPChanged:         profile.HasIPChanged(existing, merged),
		MacSettingChanged: profile.HasMacSettingChanged(existing, merged),
	}

	// New secrets invalidate everything learned with the old ones.
	if res.CredentialChanged {
		merged.Selection.EverConnected = false
		merged.Selection.ClearCounters()
	}

	if err := e.store.Replace(merged); err != nil {
		e.logger.Error("store rejected update", "key", merged.Key(), "error", err)
		return Result{Status: StatusInvalidProfile, ID: profile.InvalidID}
	}
	e.logger.Info("profile updated", "id", int(merged.ID), "key", merged.Key(),
		"caller", c.Name, "credential_changed", res.CredentialChanged)
	if profile.SecuritySetChanged(existing, merged) {
		e.bus.Publish(events.Event{Type: events.SecurityParamsUpdated, Profile: merged.Redacted()})
	}
	e.finish(c, merged, &res, events.ProfileUpdated)
	return res
}

// finish runs the post-success side effects shared by add and update.
func (e *Engine) finish(c permission.Caller, p *profile.Profile, res *Result, evType events.Type) {
	if e.links.Relink(p, e.store.All()) {
		e.bus.Publish(events.Event{Type: events.ProfileLinksChanged, Profile: p.Redacted()})
	}

	e.bus.Publish(events.Event{Type: evType, Profile: p.Redacted()})

	// The quotas bind the just-merged profile too: when it ranks worst it
	// is its own victim, and Evicted reports that back to the caller. The
	// app-added quota only applies to requests from unprivileged callers,
	// over the profiles such callers created.
	var appAdded func(*profile.Profile) bool
	if !e.gate.IsPrivileged(c) {
		appAdded = func(pr *profile.Profile) bool {
			return !e.gate.IsPrivileged(permission.Caller{UID: pr.CreatorUID, Name: pr.CreatorName})
		}
	}
	for _, victim := range e.evictor.SelectVictims(e.store.All(), appAdded) {
		e.removeInternal(victim)
		res.Evicted = append(res.Evicted, victim.ID)
	}

	if !p.Ephemeral {
		e.saver.Schedule()
	}
}

// Remove deletes a profile on behalf of a caller.
func (e *Engine) Remove(c permission.Caller, id profile.ID) Status {
	p := e.store.ByID(id)
	if p == nil {
		return StatusInvalidProfile
	}
	if !e.gate.CanModify(c, p) {
		e.logger.Warn("remove denied", "key", p.Key(), "caller", c.Name, "uid", c.UID)
		return StatusNoPermission
	}
	e.logger.Info("profile removed", "id", int(id), "key", p.Key(), "caller", c.Name)
	e.removeInternal(p)
	if !p.Ephemeral {
		e.saver.Schedule()
	}
	return StatusSuccess
}

func (e *Engine) removeInternal(p *profile.Profile) {
	e.links.UnlinkAll(p, e.store.All())
	e.store.Remove(p.ID)
	e.scans.Remove(p.ID)
	e.bus.Publish(events.Event{Type: events.ProfileRemoved, Profile: p.Redacted()})
}
