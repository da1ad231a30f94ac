// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store owns the canonical in-memory profile map. It is not
// safe for concurrent use: all mutation happens on the registry's single
// writer context, and callers outside that context only ever see clones.
package store

import (
	"sort"

	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/profile"
)

// UserOf maps a creator UID to its owning user partition.
type UserOf func(uid int) int

// DefaultUserOf follows the platform convention of 100000 UIDs per user.
func DefaultUserOf(uid int) int { return uid / 100000 }

// Store is the authoritative registry of saved profiles, partitioned by
// owning user. One profile per ID and per key, always.
type Store struct {
	logger *logging.Logger

	byID  map[profile.ID]*profile.Profile
	byKey map[string]profile.ID

	nextID profile.ID

	// currentUser is the active user partition. Explicit field with
	// transition methods, never process-wide state.
	currentUser int
	userOf      UserOf
}

// New creates an empty store for the given initial user.
func New(currentUser int, userOf UserOf) *Store {
	if userOf == nil {
		userOf = DefaultUserOf
	}
	return &Store{
		logger:      logging.WithComponent("store"),
		byID:        make(map[profile.ID]*profile.Profile),
		byKey:       make(map[string]profile.ID),
		currentUser: currentUser,
		userOf:      userOf,
	}
}

// Add registers a profile and returns its assigned ID. A profile with
// InvalidID gets the next monotonic ID; IDs are never reused. A key
// collision with a different live profile is a caller error.
func (s *Store) Add(p *profile.Profile) (profile.ID, error) {
	key := p.Key()
	if id, ok := s.byKey[key]; ok && id != p.ID {
		return profile.InvalidID, errors.Errorf(errors.KindConflict, "profile key %q already registered", key)
	}
	if p.ID == profile.InvalidID {
		p.ID = s.nextID
		s.nextID++
	} else if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
	s.byID[p.ID] = p
	s.byKey[key] = p.ID
	return p.ID, nil
}

// Replace swaps an updated profile in under its existing ID, fixing up
// the key index if the merge changed the default security family.
func (s *Store) Replace(p *profile.Profile) error {
	old, ok := s.byID[p.ID]
	if !ok {
		return errors.Errorf(errors.KindNotFound, "profile %d not found", p.ID)
	}
	if oldKey := old.Key(); oldKey != p.Key() {
		delete(s.byKey, oldKey)
	}
	if id, ok := s.byKey[p.Key()]; ok && id != p.ID {
		return errors.Errorf(errors.KindConflict, "profile key %q held by profile %d", p.Key(), id)
	}
	s.byID[p.ID] = p
	s.byKey[p.Key()] = p.ID
	return nil
}

// ByID returns the internal profile for an ID, or nil.
func (s *Store) ByID(id profile.ID) *profile.Profile {
	return s.byID[id]
}

// ByKey returns the internal profile for a profile key, or nil.
func (s *Store) ByKey(key string) *profile.Profile {
	id, ok := s.byKey[key]
	if !ok {
		return nil
	}
	return s.byID[id]
}

// Match finds the internal profile an external one refers to: by ID
// first, then by key, then by the upgradable-counterpart keys so a
// legacy-typed request still matches its auto-upgraded profile.
func (s *Store) Match(p *profile.Profile) *profile.Profile {
	if p.ID != profile.InvalidID {
		if found := s.byID[p.ID]; found != nil {
			return found
		}
	}
	if found := s.ByKey(p.Key()); found != nil {
		return found
	}
	for _, alt := range p.AlternateKeys() {
		if found := s.ByKey(alt); found != nil {
			return found
		}
	}
	return nil
}

// Remove deletes a profile and returns it, or nil if unknown.
func (s *Store) Remove(id profile.ID) *profile.Profile {
	p, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	delete(s.byKey, p.Key())
	return p
}

// All returns the internal profiles of every user, ordered by ID.
func (s *Store) All() []*profile.Profile {
	out := make([]*profile.Profile, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Visible returns the internal profiles visible to the current user:
// shared ones plus the user's own.
func (s *Store) Visible() []*profile.Profile {
	var out []*profile.Profile
	for _, p := range s.All() {
		if s.VisibleToCurrentUser(p) {
			out = append(out, p)
		}
	}
	return out
}

// VisibleToCurrentUser reports whether the profile is in the active
// user's partition.
func (s *Store) VisibleToCurrentUser(p *profile.Profile) bool {
	return p.Shared || s.userOf(p.CreatorUID) == s.currentUser
}

// OwnedBy reports whether the profile's creator belongs to user.
func (s *Store) OwnedBy(p *profile.Profile, user int) bool {
	return s.userOf(p.CreatorUID) == user
}

// AllForUser returns the internal profiles owned by the given user.
func (s *Store) AllForUser(user int) []*profile.Profile {
	var out []*profile.Profile
	for _, p := range s.All() {
		if s.userOf(p.CreatorUID) == user {
			out = append(out, p)
		}
	}
	return out
}

// CurrentUser returns the active user partition.
func (s *Store) CurrentUser() int { return s.currentUser }

// SetCurrentUser switches the active user partition. Purging the old
// user's private profiles is the manager's job, not the store's.
func (s *Store) SetCurrentUser(user int) {
	if user != s.currentUser {
		s.logger.Debug("switching user partition", "from", s.currentUser, "to", user)
	}
	s.currentUser = user
}

// Count returns the number of live profiles across all users.
func (s *Store) Count() int { return len(s.byID) }

// Clear drops every profile. Used when reloading from durable storage.
func (s *Store) Clear() {
	s.byID = make(map[profile.ID]*profile.Profile)
	s.byKey = make(map[string]profile.ID)
}
