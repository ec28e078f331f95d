package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/ledger"
	"github.com/defistate/defistate-vault-go/protocols/shareregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr       = "127.0.0.1:8545"
	DefaultDatabasePath     = "vault.db"
	DefaultStreamBufferSize = 64
	DefaultOracleTimeout    = 5 * time.Second
)

type VaultConfig struct {
	ListenAddr         string   `yaml:"listen_addr"`
	DatabasePath       string   `yaml:"database_path"`
	StreamBufferSize   uint     `yaml:"stream_buffer_size"`
	VaultModuleID      string   `yaml:"vault_module_id"`
	LiquidatorModuleID string   `yaml:"liquidator_module_id"`
	LiquidationBonus   string   `yaml:"liquidation_bonus"`
	Finders            []string `yaml:"finders"`

	Oracle        OracleConfig        `yaml:"oracle"`
	Genesis       []GenesisAllocation `yaml:"genesis"`
	Registrations []Registration      `yaml:"registrations"`
}

// OracleConfig selects the price source. When URL is set prices are fetched
// from a remote oracle namespace; otherwise Prices is served statically.
type OracleConfig struct {
	URL     string                    `yaml:"url"`
	Timeout time.Duration             `yaml:"timeout"`
	Serve   bool                      `yaml:"serve"`
	Prices  map[engine.AssetID]string `yaml:"prices"`
}

type GenesisAllocation struct {
	Asset   engine.AssetID `yaml:"asset"`
	Account string         `yaml:"account"`
	Amount  string         `yaml:"amount"`
}

type Registration struct {
	Asset      engine.AssetID `yaml:"asset"`
	ShareAsset engine.AssetID `yaml:"share_asset"`
}

// LoadConfig reads a configuration file from the given path, unmarshals it
// into a VaultConfig and applies defaults.
func LoadConfig(path string) (*VaultConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg VaultConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *VaultConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.StreamBufferSize == 0 {
		c.StreamBufferSize = DefaultStreamBufferSize
	}
	if c.VaultModuleID == "" {
		c.VaultModuleID = engine.VaultModuleID.String()
	}
	if c.LiquidatorModuleID == "" {
		c.LiquidatorModuleID = engine.LiquidatorModuleID.String()
	}
	if c.LiquidationBonus == "" {
		c.LiquidationBonus = "0"
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = DefaultOracleTimeout
	}
}

func (c *VaultConfig) validate() error {
	if _, err := c.Accounts(); err != nil {
		return err
	}
	if _, err := c.Bonus(); err != nil {
		return err
	}
	if _, err := c.FinderAddresses(); err != nil {
		return err
	}
	if _, err := c.Allocations(); err != nil {
		return err
	}
	if _, err := c.Oracle.StaticPrices(); err != nil {
		return err
	}
	if c.Oracle.URL != "" && c.Oracle.Serve {
		return errors.New("config: oracle.serve requires a static oracle")
	}
	return nil
}

// Accounts derives the sovereign accounts from the configured module ids.
func (c *VaultConfig) Accounts() (engine.SovereignAccounts, error) {
	vaultID, err := engine.ParseModuleID(c.VaultModuleID)
	if err != nil {
		return engine.SovereignAccounts{}, fmt.Errorf("config: vault_module_id: %w", err)
	}
	liquidatorID, err := engine.ParseModuleID(c.LiquidatorModuleID)
	if err != nil {
		return engine.SovereignAccounts{}, fmt.Errorf("config: liquidator_module_id: %w", err)
	}
	if vaultID == liquidatorID {
		return engine.SovereignAccounts{}, errors.New("config: vault and liquidator module ids must differ")
	}
	return engine.SovereignAccounts{VaultID: vaultID, LiquidatorID: liquidatorID}, nil
}

// Bonus parses the liquidation bonus, e.g. "0.05" for five percent.
func (c *VaultConfig) Bonus() (decimal.Decimal, error) {
	bonus, err := decimal.NewFromString(c.LiquidationBonus)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: liquidation_bonus: %w", err)
	}
	if bonus.IsNegative() {
		return decimal.Zero, errors.New("config: liquidation_bonus must not be negative")
	}
	return bonus, nil
}

// FinderAddresses parses the liquidation caller allow-list. Empty means anyone.
func (c *VaultConfig) FinderAddresses() ([]common.Address, error) {
	out := make([]common.Address, 0, len(c.Finders))
	for _, s := range c.Finders {
		addr, err := parseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("config: finders: %w", err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// Allocations converts the genesis section into ledger allocations.
func (c *VaultConfig) Allocations() ([]ledger.Allocation, error) {
	out := make([]ledger.Allocation, 0, len(c.Genesis))
	for i, g := range c.Genesis {
		account, err := parseAddress(g.Account)
		if err != nil {
			return nil, fmt.Errorf("config: genesis[%d]: %w", i, err)
		}
		amount, err := uint256.FromDecimal(g.Amount)
		if err != nil {
			return nil, fmt.Errorf("config: genesis[%d]: amount %q: %w", i, g.Amount, err)
		}
		out = append(out, ledger.Allocation{Asset: g.Asset, Account: account, Amount: amount})
	}
	return out, nil
}

// Entries returns the registrations to apply at startup.
func (c *VaultConfig) Entries() []shareregistry.Entry {
	out := make([]shareregistry.Entry, 0, len(c.Registrations))
	for _, r := range c.Registrations {
		out = append(out, shareregistry.Entry{Asset: r.Asset, ShareAsset: r.ShareAsset})
	}
	return out
}

// StaticPrices parses the configured price table.
func (o *OracleConfig) StaticPrices() (map[engine.AssetID]*uint256.Int, error) {
	out := make(map[engine.AssetID]*uint256.Int, len(o.Prices))
	for asset, s := range o.Prices {
		price, err := uint256.FromDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("config: oracle.prices[%d]: %w", asset, err)
		}
		out[asset] = price
	}
	return out, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
