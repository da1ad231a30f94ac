// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package profile

import (
	"encoding/hex"
	"unicode/utf8"

	"grimm.is/airwall/internal/errors"
)

const (
	maxSSIDBytes     = 32
	minPassphraseLen = 8
	maxPassphraseLen = 63
	maxSAELen        = 128
)

// ValidateForAdd checks a profile received for creation. Structural
// problems reject the whole request before any state change.
func ValidateForAdd(p *Profile) error {
	return validate(p, true)
}

// ValidateForUpdate checks a profile received for an update of an
// existing one. Masked credentials are legal here: the merge keeps the
// stored value.
func ValidateForUpdate(p *Profile) error {
	return validate(p, false)
}

func validate(p *Profile, isAdd bool) error {
	if p == nil {
		return errors.New(errors.KindValidation, "nil profile")
	}
	if err := validateSSID(p); err != nil {
		return err
	}
	if len(p.Security) == 0 {
		return errors.New(errors.KindValidation, "empty security parameter set")
	}
	def := p.DefaultSecurity().Type
	switch def {
	case SecurityPSK, SecuritySAE:
		if err := validatePSK(p, isAdd); err != nil {
			return err
		}
	case SecurityWEP:
		if err := validateWEP(p, isAdd); err != nil {
			return err
		}
	case SecurityEAP:
		if err := ValidateEnterprise(p); err != nil {
			return err
		}
	}
	return nil
}

func validateSSID(p *Profile) error {
	if p.FromPasspoint && p.FQDN != "" {
		return nil
	}
	if p.SSID == "" {
		return errors.New(errors.KindValidation, "missing ssid")
	}
	if len(p.SSID) > maxSSIDBytes {
		return errors.Errorf(errors.KindValidation, "ssid longer than %d bytes", maxSSIDBytes)
	}
	if !utf8.ValidString(p.SSID) {
		return errors.New(errors.KindValidation, "ssid is not valid utf-8")
	}
	return nil
}

func validatePSK(p *Profile, isAdd bool) error {
	key := p.PreSharedKey
	if key == PasswordMask && !isAdd {
		return nil
	}
	if key == "" {
		if isAdd {
			return errors.New(errors.KindValidation, "missing passphrase")
		}
		return nil
	}
	// 64 hex characters is a raw PSK, anything else is a passphrase.
	if len(key) == 64 {
		if _, err := hex.DecodeString(key); err == nil {
			return nil
		}
	}
	if !validPassphrase(key, p.DefaultSecurity().Type) {
		return errors.New(errors.KindValidation, "passphrase length out of range")
	}
	return nil
}

// validPassphrase reports whether key is acceptable for the given
// security type. SAE allows short and long passphrases that PSK rejects.
func validPassphrase(key string, t SecurityType) bool {
	switch t {
	case SecuritySAE:
		return len(key) >= 1 && len(key) <= maxSAELen
	default:
		return len(key) >= minPassphraseLen && len(key) <= maxPassphraseLen
	}
}

func validateWEP(p *Profile, isAdd bool) error {
	any := false
	for _, k := range p.WEPKeys {
		if k == "" || (k == PasswordMask && !isAdd) {
			continue
		}
		any = true
		switch len(k) {
		case 5, 13: // ASCII keys
		case 10, 26: // hex keys
			if _, err := hex.DecodeString(k); err != nil {
				return errors.New(errors.KindValidation, "malformed wep key")
			}
		default:
			return errors.New(errors.KindValidation, "wep key length invalid")
		}
	}
	if isAdd && !any {
		return errors.New(errors.KindValidation, "wep profile without keys")
	}
	if p.WEPTxKeyIdx < 0 || p.WEPTxKeyIdx >= len(p.WEPKeys) {
		return errors.New(errors.KindValidation, "wep tx key index out of range")
	}
	return nil
}

// ValidateEnterprise checks 802.1X trust material. A server-cert method
// needs a root CA and a domain unless trust-on-first-use is enabled;
// anything else is an invalid enterprise configuration.
func ValidateEnterprise(p *Profile) error {
	e := p.Enterprise
	if e == nil {
		return errors.New(errors.KindValidation, "eap profile without enterprise config")
	}
	if !e.UsesServerCert() || e.TrustOnFirstUse {
		return nil
	}
	if e.CACert == "" || e.Domain == "" {
		return errors.New(errors.KindValidation, "enterprise config missing root CA or domain")
	}
	return nil
}
