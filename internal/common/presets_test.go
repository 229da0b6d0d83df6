package common

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePresets = `
presets:
  - name: ops-2of3
    wallet_type: multisig
    multisig_type: 2_of_3
    chain_id: 1
    required_signatures: 2
    total_signers: 3
    config:
      prime_wallet_id: wallet-123
  - name: treasury
    wallet_type: treasury
    chain_id: 137
    required_signatures: 3
    total_signers: 5
`

func TestLoadWalletPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte(samplePresets), 0o600); err != nil {
		t.Fatalf("Failed to write presets: %v", err)
	}

	presets, err := LoadWalletPresets(path)
	if err != nil {
		t.Fatalf("LoadWalletPresets failed: %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("Expected 2 presets, got %d", len(presets))
	}

	preset, err := FindPreset(presets, "ops-2of3")
	if err != nil {
		t.Fatalf("FindPreset failed: %v", err)
	}
	if preset.MultisigType != "2_of_3" || preset.Config["prime_wallet_id"] != "wallet-123" {
		t.Errorf("Unexpected preset: %+v", preset)
	}
	if _, err := FindPreset(presets, "missing"); err == nil {
		t.Error("Expected missing preset to fail")
	}
}

func TestParseWalletPresets_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "presets:\n  - wallet_type: multisig\n    required_signatures: 1\n    total_signers: 1\n"},
		{"unknown type", "presets:\n  - name: a\n    wallet_type: vault\n    required_signatures: 1\n    total_signers: 1\n"},
		{"threshold too high", "presets:\n  - name: a\n    wallet_type: treasury\n    required_signatures: 4\n    total_signers: 3\n"},
		{"duplicate", "presets:\n  - name: a\n    wallet_type: treasury\n    required_signatures: 1\n    total_signers: 1\n  - name: a\n    wallet_type: treasury\n    required_signatures: 1\n    total_signers: 1\n"},
		{"not yaml", "presets: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWalletPresets([]byte(tt.yaml), "test"); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
