// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package macrand

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/netutil"
)

// HKDFDeriver derives stable per-profile addresses from a device secret.
// The same secret and profile key always produce the same address, so a
// forgotten-and-readded profile comes back with its old identity.
type HKDFDeriver struct {
	secret []byte
}

// NewHKDFDeriver creates a deriver. The secret must be device-unique and
// at least 16 bytes; it never leaves the process.
func NewHKDFDeriver(secret []byte) (*HKDFDeriver, error) {
	if len(secret) < 16 {
		return nil, errors.New(errors.KindValidation, "device secret too short")
	}
	return &HKDFDeriver{secret: secret}, nil
}

// Derive expands the secret under the profile key into a 6-byte
// locally-administered unicast address.
func (d *HKDFDeriver) Derive(key string) (string, error) {
	r := hkdf.New(sha256.New, d.secret, []byte("airwall-mac-v1"), []byte(key))
	mac := make([]byte, 6)
	if _, err := io.ReadFull(r, mac); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "hkdf expand")
	}
	mac[0] &^= 0x01
	mac[0] |= 0x02
	return netutil.FormatMAC(mac), nil
}
