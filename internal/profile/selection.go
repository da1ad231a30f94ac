// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package profile

import "time"

// SelectionState is the per-profile enable/disable lifecycle state.
type SelectionState int

const (
	StatusEnabled SelectionState = iota
	StatusTemporarilyDisabled
	StatusPermanentlyDisabled
)

func (s SelectionState) String() string {
	switch s {
	case StatusTemporarilyDisabled:
		return "temporarily_disabled"
	case StatusPermanentlyDisabled:
		return "permanently_disabled"
	default:
		return "enabled"
	}
}

// DisableReason identifies why a profile was taken out of selection.
// The temporary/permanent classification and per-reason thresholds live
// in the selection package's reason table, not here.
type DisableReason int

const (
	DisableReasonNone DisableReason = iota
	DisableAssociationRejection
	DisableAuthenticationFailure
	DisableDHCPFailure
	DisableNetworkNotFound
	DisableNoInternetTemporary
	DisableNoCredentials
	DisableNoInternetPermanent
	DisableWrongPassword
	DisableNoSubscription
	DisableConsecutiveFailures
	DisableByUser
	DisableByService
)

func (r DisableReason) String() string {
	switch r {
	case DisableReasonNone:
		return "none"
	case DisableAssociationRejection:
		return "association_rejection"
	case DisableAuthenticationFailure:
		return "authentication_failure"
	case DisableDHCPFailure:
		return "dhcp_failure"
	case DisableNetworkNotFound:
		return "network_not_found"
	case DisableNoInternetTemporary:
		return "no_internet_temporary"
	case DisableNoCredentials:
		return "no_credentials"
	case DisableNoInternetPermanent:
		return "no_internet_permanent"
	case DisableWrongPassword:
		return "wrong_password"
	case DisableNoSubscription:
		return "no_subscription"
	case DisableConsecutiveFailures:
		return "consecutive_failures"
	case DisableByUser:
		return "by_user"
	case DisableByService:
		return "by_service"
	default:
		return "unknown"
	}
}

// ParseDisableReason maps a reason name back to its value.
func ParseDisableReason(s string) (DisableReason, bool) {
	for r := DisableReasonNone; r <= DisableByService; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return DisableReasonNone, false
}

// Candidate is the transient result of the most recent selection cycle.
// Not persisted.
type Candidate struct {
	BSSID     string
	RSSI      int
	Frequency int
	Score     int
	SeenAt    time.Time
}

// SelectionStatus tracks the enable/disable lifecycle of one profile.
type SelectionStatus struct {
	State          SelectionState
	DisableReason  DisableReason
	DisableTime    time.Time
	DisableEndTime time.Time

	// ReasonCounters debounce failures: a reason disables the profile
	// only once its counter reaches the policy threshold.
	ReasonCounters map[DisableReason]int

	EverConnected     bool
	SeenCaptivePortal bool

	// Candidate is transient scan-cycle state.
	Candidate *Candidate

	// ConnectChoice is the key of another profile the user preferred
	// over this one, with the signal strength recorded at choice time.
	ConnectChoice     string
	ConnectChoiceRSSI int
}

// Enabled reports whether the profile may participate in selection.
func (s *SelectionStatus) Enabled() bool {
	return s.State == StatusEnabled
}

// Counter returns the failure counter for a reason.
func (s *SelectionStatus) Counter(r DisableReason) int {
	return s.ReasonCounters[r]
}

// BumpCounter increments the failure counter for a reason and returns
// the new value.
func (s *SelectionStatus) BumpCounter(r DisableReason) int {
	if s.ReasonCounters == nil {
		s.ReasonCounters = make(map[DisableReason]int)
	}
	s.ReasonCounters[r]++
	return s.ReasonCounters[r]
}

// ClearCounters resets all failure counters.
func (s *SelectionStatus) ClearCounters() {
	s.ReasonCounters = nil
}

func (s SelectionStatus) clone() SelectionStatus {
	c := s
	if s.ReasonCounters != nil {
		c.ReasonCounters = make(map[DisableReason]int, len(s.ReasonCounters))
		for k, v := range s.ReasonCounters {
			c.ReasonCounters[k] = v
		}
	}
	if s.Candidate != nil {
		cand := *s.Candidate
		c.Candidate = &cand
	}
	return c
}
