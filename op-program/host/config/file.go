package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/mantle-fp/op-node/rollup"
)

// FileConfig is the TOML form of the host settings, using the same names as the CLI flags.
type FileConfig struct {
	RollupConfig  string `toml:"rollup-config"`
	DataDir       string `toml:"datadir"`
	L1Head        string `toml:"l1-head"`
	L2OutputRoot  string `toml:"l2-output-root"`
	L2Claim       string `toml:"l2-claim"`
	L2BlockNumber uint64 `toml:"l2-block-number"`
	Exec          string `toml:"exec"`
	Server        bool   `toml:"server"`
}

// LoadFile decodes a TOML host config file. Unknown keys are rejected.
func LoadFile(path string) (*FileConfig, error) {
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode host config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in host config %q: %s", path, strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// Config converts the file settings into a host Config, loading the referenced rollup config.
func (f *FileConfig) Config() (*Config, error) {
	if f.RollupConfig == "" {
		return nil, ErrMissingRollupConfig
	}
	rollupCfg, err := rollup.LoadRollupConfig(f.RollupConfig)
	if err != nil {
		return nil, err
	}
	l1Head, err := parseHash(f.L1Head, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidL1Head, err)
	}
	l2OutputRoot, err := parseHash(f.L2OutputRoot, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidL2OutputRoot, err)
	}
	// The zero hash is a valid claim.
	l2Claim, err := parseHash(f.L2Claim, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidL2Claim, err)
	}
	cfg := NewConfig(rollupCfg, f.DataDir, l1Head, l2OutputRoot, l2Claim, f.L2BlockNumber)
	cfg.ExecCmd = f.Exec
	cfg.ServerMode = f.Server
	return cfg, nil
}

func parseHash(s string, allowZero bool) (common.Hash, error) {
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("expected 32 byte hex hash, got %q", s)
	}
	var h common.Hash
	if err := h.UnmarshalText([]byte("0x" + raw)); err != nil {
		return common.Hash{}, fmt.Errorf("%q: %w", s, err)
	}
	if !allowZero && h == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("zero hash %q", s)
	}
	return h, nil
}
