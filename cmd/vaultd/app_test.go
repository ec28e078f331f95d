package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-vault-go/cmd/vaultd/config"
	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/liquidator"
	"github.com/defistate/defistate-vault-go/oracle"
	"github.com/defistate/defistate-vault-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadTestConfig(t *testing.T, dbPath string) *config.VaultConfig {
	t.Helper()
	body := fmt.Sprintf(`
database_path: %q
liquidation_bonus: "0.05"
oracle:
  serve: true
  prices:
    1: "2"
    2: "1"
genesis:
  - {asset: 1, account: %q, amount: "1000"}
  - {asset: 2, account: %q, amount: "1000"}
registrations:
  - {asset: 1, share_asset: 101}
`, dbPath, alice.Hex(), bob.Hex())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func call(t *testing.T, c *rpc.Client, result any, method string, args ...any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return engine.FromWire(c.CallContext(ctx, result, method, args...))
}

func TestApp_ServesAndResumes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vault.db")
	cfg := loadTestConfig(t, dbPath)

	node, err := newApp(context.Background(), cfg, newTestLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	client := rpc.DialInProc(node.rpcServer)

	var added bool
	require.NoError(t, call(t, client, &added, "vault_register", engine.AssetID(2), engine.AssetID(102)))
	assert.True(t, added)

	var minted *uint256.Int
	require.NoError(t, call(t, client, &minted, "vault_deposit", alice, engine.AssetID(1), uint256.NewInt(100)))
	assert.Equal(t, uint64(100), minted.Uint64())

	var res liquidator.Result
	require.NoError(t, call(t, client, &res, "vault_liquidate", alice, liquidator.Request{
		TargetUser:   bob,
		PayAsset:     1,
		GetAsset:     2,
		PayAmount:    uint256.NewInt(10),
		BorrowAmount: uint256.NewInt(15),
	}))
	assert.Equal(t, uint64(21), res.GetAmount.Uint64())

	var price *uint256.Int
	require.NoError(t, call(t, client, &price, oracle.RpcNamespace+"_getPrice", engine.AssetID(1)))
	assert.Equal(t, uint64(2), price.Uint64())

	lastSeq := node.bus.Seq()
	// config registration, register, deposit, liquidation
	assert.Equal(t, uint64(4), lastSeq)

	client.Close()
	node.Close()

	// a restart keeps the registry and continues the sequence
	restarted, err := newApp(context.Background(), cfg, newTestLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer restarted.Close()

	assert.Equal(t, 2, restarted.registry.Len())
	assert.Equal(t, lastSeq, restarted.bus.Seq(), "config registration is not re-emitted")

	client = rpc.DialInProc(restarted.rpcServer)
	defer client.Close()

	var state engine.State
	require.NoError(t, call(t, client, &state, "vault_state"))
	assert.Equal(t, lastSeq, state.Sequence)
	require.Len(t, state.Pools, 2)
	assert.True(t, state.Pools[1].Balance.IsZero(), "balances restart from genesis")

	require.NoError(t, call(t, client, &minted, "vault_deposit", alice, engine.AssetID(1), uint256.NewInt(7)))
	assert.Equal(t, lastSeq+1, restarted.bus.Seq())
}

func TestApp_RejectsConflictingConfigRegistration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vault.db")
	cfg := loadTestConfig(t, dbPath)

	node, err := newApp(context.Background(), cfg, newTestLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	node.Close()

	cfg.Registrations[0].ShareAsset = 999
	_, err = newApp(context.Background(), cfg, newTestLogger(), prometheus.NewRegistry())
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAlreadyRegistered)
}

func TestApp_Handler(t *testing.T) {
	cfg := loadTestConfig(t, filepath.Join(t.TempDir(), "vault.db"))
	reg := prometheus.NewRegistry()
	node, err := newApp(context.Background(), cfg, newTestLogger(), reg)
	require.NoError(t, err)
	defer node.Close()

	srv := httptest.NewServer(node.handler(reg))
	defer srv.Close()

	t.Run("JSON-RPC over HTTP", func(t *testing.T) {
		client, err := rpc.Dial(srv.URL)
		require.NoError(t, err)
		defer client.Close()

		var accounts server.AccountsResult
		require.NoError(t, call(t, client, &accounts, "vault_accounts"))
		assert.Equal(t, "py/vault", accounts.VaultID)
	})

	t.Run("JSON-RPC over WebSocket", func(t *testing.T) {
		client, err := rpc.Dial("ws" + strings.TrimPrefix(srv.URL, "http"))
		require.NoError(t, err)
		defer client.Close()

		var pool engine.PoolState
		require.NoError(t, call(t, client, &pool, "vault_pool", engine.AssetID(1)))
		assert.Equal(t, engine.AssetID(101), pool.ShareAsset)
	})

	t.Run("Metrics", func(t *testing.T) {
		_, err := node.vault.Deposit(alice, 1, uint256.NewInt(1))
		require.NoError(t, err)

		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "vault_operations_total")
	})
}
