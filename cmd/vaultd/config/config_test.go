package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Applies defaults", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "{}\n"))
		require.NoError(t, err)

		assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
		assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
		assert.Equal(t, uint(DefaultStreamBufferSize), cfg.StreamBufferSize)
		assert.Equal(t, DefaultOracleTimeout, cfg.Oracle.Timeout)

		accounts, err := cfg.Accounts()
		require.NoError(t, err)
		assert.Equal(t, engine.DefaultSovereignAccounts(), accounts)

		bonus, err := cfg.Bonus()
		require.NoError(t, err)
		assert.True(t, bonus.IsZero())
	})

	t.Run("Parses a full file", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
listen_addr: 0.0.0.0:9000
vault_module_id: ab/vault
liquidation_bonus: "0.05"
finders:
  - "0x00000000000000000000000000000000000a11ce"
oracle:
  timeout: 2s
  serve: true
  prices:
    1: "2"
    2: "1"
genesis:
  - asset: 1
    account: "0x0000000000000000000000000000000000000b0b"
    amount: "1000000000000000000000"
registrations:
  - asset: 1
    share_asset: 101
`))
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
		assert.Equal(t, 2*time.Second, cfg.Oracle.Timeout)

		accounts, err := cfg.Accounts()
		require.NoError(t, err)
		assert.Equal(t, "ab/vault", accounts.VaultID.String())

		bonus, err := cfg.Bonus()
		require.NoError(t, err)
		assert.Equal(t, "0.05", bonus.String())

		finders, err := cfg.FinderAddresses()
		require.NoError(t, err)
		assert.Equal(t, []common.Address{common.HexToAddress("0x0a11ce")}, finders)

		allocs, err := cfg.Allocations()
		require.NoError(t, err)
		require.Len(t, allocs, 1)
		assert.Equal(t, "1000000000000000000000", allocs[0].Amount.Dec())

		prices, err := cfg.Oracle.StaticPrices()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), prices[1].Uint64())

		entries := cfg.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, engine.AssetID(101), entries[0].ShareAsset)
	})

	t.Run("Rejects invalid values", func(t *testing.T) {
		testCases := []struct {
			name string
			body string
		}{
			{"same module ids", "vault_module_id: py/x\nliquidator_module_id: py/x\n"},
			{"long module id", "vault_module_id: way-too-long\n"},
			{"negative bonus", "liquidation_bonus: \"-0.1\"\n"},
			{"bad bonus", "liquidation_bonus: lots\n"},
			{"bad finder", "finders: [\"nope\"]\n"},
			{"bad genesis amount", "genesis: [{asset: 1, account: \"0x0000000000000000000000000000000000000b0b\", amount: \"lots\"}]\n"},
			{"bad price", "oracle: {prices: {1: \"1.5\"}}\n"},
			{"serve remote oracle", "oracle: {url: \"ws://localhost:1\", serve: true}\n"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := LoadConfig(writeConfig(t, tc.body))
				assert.Error(t, err)
			})
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
