// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package events carries registry change notifications to in-process
// listeners: profile lifecycle, selection status transitions, and
// linking changes. Payload profiles are always redacted copies.
package events

import (
	"sync"

	"github.com/google/uuid"

	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/profile"
)

// Type discriminates the event variants.
type Type int

const (
	ProfileAdded Type = iota
	ProfileUpdated
	ProfileRemoved
	ProfileEnabled
	ProfileTemporarilyDisabled
	ProfilePermanentlyDisabled
	ProfileLinksChanged
	SecurityParamsUpdated
	ConnectChoiceSet
	ConnectChoiceCleared
	StoreLoaded
)

func (t Type) String() string {
	switch t {
	case ProfileAdded:
		return "profile-added"
	case ProfileUpdated:
		return "profile-updated"
	case ProfileRemoved:
		return "profile-removed"
	case ProfileEnabled:
		return "profile-enabled"
	case ProfileTemporarilyDisabled:
		return "profile-temporarily-disabled"
	case ProfilePermanentlyDisabled:
		return "profile-permanently-disabled"
	case ProfileLinksChanged:
		return "profile-links-changed"
	case SecurityParamsUpdated:
		return "security-params-updated"
	case ConnectChoiceSet:
		return "connect-choice-set"
	case ConnectChoiceCleared:
		return "connect-choice-cleared"
	case StoreLoaded:
		return "store-loaded"
	}
	return "unknown"
}

// Event is one registry notification. Profile is a redacted clone and
// safe to retain; Reason is set on disable transitions only.
type Event struct {
	Type    Type
	Profile *profile.Profile
	Reason  profile.DisableReason
}

// Listener receives events synchronously on the publisher's goroutine.
// Listeners must not block; anything slow should hand off to its own
// goroutine.
type Listener func(Event)

// Bus is a named-listener fanout. Registration is keyed by name so a
// component restarting can re-register without leaking its old
// subscription.
type Bus struct {
	mu        sync.Mutex
	listeners map[string]Listener
	logger    *logging.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[string]Listener),
		logger:    logging.WithComponent("events"),
	}
}

// AddListener registers fn under name, replacing any previous listener
// with the same name. An empty name gets a generated one; the effective
// name is returned for later removal.
func (b *Bus) AddListener(name string, fn Listener) string {
	if name == "" {
		name = uuid.NewString()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = fn
	return name
}

// RemoveListener deregisters a listener. Unknown names are a no-op.
func (b *Bus) RemoveListener(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, name)
}

// Publish delivers the event to every listener. The listener snapshot is
// taken under the lock but delivery happens outside it, so listeners may
// themselves add or remove subscriptions.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	snapshot := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		snapshot = append(snapshot, fn)
	}
	b.mu.Unlock()

	b.logger.Debug("publishing event", "type", ev.Type.String(), "listeners", len(snapshot))
	for _, fn := range snapshot {
		fn(ev)
	}
}
