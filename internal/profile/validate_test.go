// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package profile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/airwall/internal/errors"
)

func TestValidateForAdd(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr bool
	}{
		{"valid psk", func(p *Profile) {}, false},
		{"missing ssid", func(p *Profile) { p.SSID = "" }, true},
		{"ssid too long", func(p *Profile) { p.SSID = strings.Repeat("x", 33) }, true},
		{"empty security set", func(p *Profile) { p.Security = nil }, true},
		{"short passphrase", func(p *Profile) { p.PreSharedKey = "short" }, true},
		{"missing passphrase", func(p *Profile) { p.PreSharedKey = "" }, true},
		{"raw 64-hex psk", func(p *Profile) { p.PreSharedKey = strings.Repeat("ab", 32) }, false},
		{"sae short passphrase ok", func(p *Profile) {
			p.Security = []SecurityParams{{Type: SecuritySAE, Enabled: true}}
			p.PreSharedKey = "pw"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pskProfile("HomeNet")
			tt.mutate(p)
			err := ValidateForAdd(p)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errors.KindValidation, errors.GetKind(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateForUpdateAllowsMask(t *testing.T) {
	p := pskProfile("HomeNet")
	p.PreSharedKey = PasswordMask
	assert.Error(t, ValidateForAdd(p))
	assert.NoError(t, ValidateForUpdate(p))
}

func TestValidateWEP(t *testing.T) {
	p := &Profile{
		SSID:     "Legacy",
		Security: []SecurityParams{{Type: SecurityWEP, Enabled: true}},
	}
	assert.Error(t, ValidateForAdd(p), "wep without any key")

	p.WEPKeys[0] = "abcde"
	assert.NoError(t, ValidateForAdd(p))

	p.WEPKeys[1] = "zz" // bad length
	assert.Error(t, ValidateForAdd(p))

	p.WEPKeys[1] = "00112233445566778899aabbcc"
	assert.NoError(t, ValidateForAdd(p))

	p.WEPTxKeyIdx = 7
	assert.Error(t, ValidateForAdd(p))
}

func TestValidateEnterprise(t *testing.T) {
	p := &Profile{
		SSID:     "Corp",
		Security: []SecurityParams{{Type: SecurityEAP, Enabled: true}},
	}
	assert.Error(t, ValidateForAdd(p), "eap without enterprise config")

	p.Enterprise = &EnterpriseConfig{Method: "peap", Identity: "alice"}
	err := ValidateForAdd(p)
	assert.Error(t, err, "server-cert method without trust material")

	p.Enterprise.TrustOnFirstUse = true
	assert.NoError(t, ValidateForAdd(p))

	p.Enterprise.TrustOnFirstUse = false
	p.Enterprise.CACert = "pem:ca"
	p.Enterprise.Domain = "corp.example.com"
	assert.NoError(t, ValidateForAdd(p))

	// SIM methods carry no server cert.
	p.Enterprise = &EnterpriseConfig{Method: "sim", SIMBased: true}
	assert.NoError(t, ValidateForAdd(p))
}
