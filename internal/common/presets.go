package common

import (
	"fmt"
	"os"
	"path/filepath"

	"institutional-custody-go/internal/models"

	"gopkg.in/yaml.v2"
)

// WalletPreset is a named wallet shape operators can create wallets from
type WalletPreset struct {
	Name               string            `yaml:"name"`
	WalletType         string            `yaml:"wallet_type"`
	MultisigType       string            `yaml:"multisig_type"`
	ChainId            int64             `yaml:"chain_id"`
	RequiredSignatures int               `yaml:"required_signatures"`
	TotalSigners       int               `yaml:"total_signers"`
	Config             map[string]string `yaml:"config"`
}

type PresetsConfig struct {
	Presets []WalletPreset `yaml:"presets"`
}

func LoadWalletPresets(presetsFile string) ([]WalletPreset, error) {
	var presetsPath string
	if filepath.IsAbs(presetsFile) {
		presetsPath = presetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		presetsPath = filepath.Join(wd, presetsFile)
	}

	data, err := os.ReadFile(presetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", presetsFile, err)
	}

	return ParseWalletPresets(data, presetsFile)
}

func ParseWalletPresets(data []byte, source string) ([]WalletPreset, error) {
	var config PresetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", source, err)
	}

	seen := make(map[string]bool, len(config.Presets))
	for i, preset := range config.Presets {
		if preset.Name == "" {
			return nil, fmt.Errorf("preset at index %d missing name", i)
		}
		if seen[preset.Name] {
			return nil, fmt.Errorf("preset %q defined twice", preset.Name)
		}
		seen[preset.Name] = true
		if !models.WalletType(preset.WalletType).Valid() {
			return nil, fmt.Errorf("preset %q has unknown wallet type %q", preset.Name, preset.WalletType)
		}
		if preset.RequiredSignatures < 1 || preset.RequiredSignatures > preset.TotalSigners {
			return nil, fmt.Errorf("preset %q needs 1 <= required_signatures <= total_signers", preset.Name)
		}
	}

	return config.Presets, nil
}

// FindPreset returns the preset with the given name
func FindPreset(presets []WalletPreset, name string) (*WalletPreset, error) {
	for i := range presets {
		if presets[i].Name == name {
			return &presets[i], nil
		}
	}
	return nil, fmt.Errorf("preset %q not found", name)
}
