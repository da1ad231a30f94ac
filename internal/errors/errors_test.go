// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "missing ssid")
	if err.Error() != "missing ssid" {
		t.Errorf("expected 'missing ssid', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "add profile")
	if wrapped.Error() != "add profile: missing ssid" {
		t.Errorf("expected 'add profile: missing ssid', got '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindPermission, "caller may not modify profile")
	if GetKind(err) != KindPermission {
		t.Errorf("expected KindPermission, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindInternal, "update failed")
	if GetKind(wrapped) != KindInternal {
		t.Errorf("expected KindInternal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestIsKind(t *testing.T) {
	err := Errorf(KindNotFound, "profile %d not found", 42)
	if !IsKind(err, KindNotFound) {
		t.Error("expected IsKind to match KindNotFound")
	}
	if IsKind(err, KindConflict) {
		t.Error("did not expect KindConflict")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindInternal, "noop") != nil {
		t.Error("wrapping nil should return nil")
	}
	if Wrapf(nil, KindInternal, "noop %d", 1) != nil {
		t.Error("wrapping nil should return nil")
	}
}
