package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/liquidator"
	"github.com/defistate/defistate-vault-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// stubVault records the calls it receives and answers with fixed values.
type stubVault struct {
	mu         sync.Mutex
	lastMethod string
	lastReq    liquidator.Request
}

func (s *stubVault) record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMethod = method
}

func (s *stubVault) last() (string, liquidator.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMethod, s.lastReq
}

func (s *stubVault) Register(asset, shareAsset engine.AssetID) (bool, error) {
	s.record("register")
	return true, nil
}

func (s *stubVault) Deposit(caller common.Address, asset engine.AssetID, amount *uint256.Int) (*uint256.Int, error) {
	s.record("deposit")
	if amount.IsZero() {
		return nil, engine.ToWire(engine.ErrZeroAmount)
	}
	return amount, nil
}

func (s *stubVault) Withdraw(caller common.Address, asset engine.AssetID, shares *uint256.Int) (*uint256.Int, error) {
	s.record("withdraw")
	return new(uint256.Int).Rsh(shares, 1), nil
}

func (s *stubVault) Borrow(caller common.Address, asset engine.AssetID, amount *uint256.Int) error {
	s.record("borrow")
	return engine.ToWire(engine.ErrNotLiquidator)
}

func (s *stubVault) Liquidate(caller common.Address, req liquidator.Request) (*liquidator.Result, error) {
	s.mu.Lock()
	s.lastMethod, s.lastReq = "liquidate", req
	s.mu.Unlock()
	return &liquidator.Result{Price: uint256.NewInt(2), GetAmount: uint256.NewInt(21)}, nil
}

func (s *stubVault) Pool(asset engine.AssetID) (engine.PoolState, error) {
	return engine.PoolState{Asset: asset, ShareAsset: asset + 100, Balance: uint256.NewInt(85), TotalShares: uint256.NewInt(100)}, nil
}

func (s *stubVault) State() *engine.State {
	return &engine.State{
		Sequence: 7,
		Pools: map[engine.AssetID]engine.PoolState{
			2: {Asset: 2, ShareAsset: 102, Balance: uint256.NewInt(0), TotalShares: uint256.NewInt(0)},
			1: {Asset: 1, ShareAsset: 101, Balance: uint256.NewInt(85), TotalShares: uint256.NewInt(100)},
		},
	}
}

func (s *stubVault) BalanceOf(asset engine.AssetID, account common.Address) (*uint256.Int, error) {
	return uint256.NewInt(42), nil
}

func (s *stubVault) Accounts() server.AccountsResult {
	accounts := engine.DefaultSovereignAccounts()
	return server.AccountsResult{
		VaultID:      accounts.VaultID.String(),
		Vault:        accounts.Vault(),
		LiquidatorID: accounts.LiquidatorID.String(),
		Liquidator:   accounts.Liquidator(),
	}
}

func (s *stubVault) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()
	go func() {
		_ = notifier.Notify(sub.ID, server.SubscriptionEvent{Type: server.EventTypeFull, Payload: s.State()})
	}()
	return sub, nil
}

func newStubNode(t *testing.T) (*stubVault, *httptest.Server) {
	t.Helper()
	stub := &stubVault{}
	rpcServer := rpc.NewServer()
	require.NoError(t, rpcServer.RegisterName(server.RpcNamespace, stub))
	t.Cleanup(rpcServer.Stop)

	srv := httptest.NewServer(server.NewHTTPHandler(rpcServer, []string{"*"}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", url, "--timeout", "5s"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	stub, srv := newStubNode(t)

	t.Run("register", func(t *testing.T) {
		out, err := run(t, srv.URL, "register", "1", "101")
		require.NoError(t, err)
		assert.JSONEq(t, `{"added":true}`, out)
	})

	t.Run("deposit", func(t *testing.T) {
		out, err := run(t, srv.URL, "deposit", alice.Hex(), "1", "100")
		require.NoError(t, err)
		assert.JSONEq(t, `{"minted":"100"}`, out)
	})

	t.Run("withdraw", func(t *testing.T) {
		out, err := run(t, srv.URL, "withdraw", alice.Hex(), "1", "100")
		require.NoError(t, err)
		assert.JSONEq(t, `{"payout":"50"}`, out)
		method, _ := stub.last()
		assert.Equal(t, "withdraw", method)
	})

	t.Run("engine errors keep their identity", func(t *testing.T) {
		_, err := run(t, srv.URL, "deposit", alice.Hex(), "1", "0")
		assert.ErrorIs(t, err, engine.ErrZeroAmount)

		_, err = run(t, srv.URL, "borrow", alice.Hex(), "1", "5")
		assert.ErrorIs(t, err, engine.ErrNotLiquidator)
	})

	t.Run("liquidate", func(t *testing.T) {
		out, err := run(t, srv.URL, "liquidate", alice.Hex(),
			"--target", "0x0000000000000000000000000000000000000b0b",
			"--pay-asset", "1", "--get-asset", "2",
			"--pay", "10", "--borrow", "15", "--max", "30",
		)
		require.NoError(t, err)
		assert.Contains(t, out, `"getAmount": "21"`)
		_, req := stub.last()
		assert.Equal(t, uint64(15), req.BorrowAmount.Uint64())
		assert.Equal(t, uint64(30), req.MaxLiquidatable.Uint64())
	})

	t.Run("liquidate requires a target", func(t *testing.T) {
		_, err := run(t, srv.URL, "liquidate", alice.Hex(), "--pay-asset", "1", "--get-asset", "2")
		assert.Error(t, err)
	})

	t.Run("state", func(t *testing.T) {
		out, err := run(t, srv.URL, "state")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, "sequence 7, 2 pools", lines[0])
		assert.True(t, strings.HasPrefix(lines[2], "1 "), "pools are ordered by asset")
	})

	t.Run("balance and accounts", func(t *testing.T) {
		out, err := run(t, srv.URL, "balance", "101", alice.Hex())
		require.NoError(t, err)
		assert.JSONEq(t, `{"balance":"42"}`, out)

		out, err = run(t, srv.URL, "accounts")
		require.NoError(t, err)
		assert.Contains(t, out, `"vaultId": "py/vault"`)
	})

	t.Run("watch", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
		done := make(chan struct{})
		var out string
		var err error
		go func() {
			defer close(done)
			out, err = run(t, wsURL, "watch", "--count", "1")
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("watch did not return")
		}
		require.NoError(t, err)
		assert.Contains(t, out, "sequence 7, 2 pools")
	})

	t.Run("bad arguments", func(t *testing.T) {
		_, err := run(t, srv.URL, "deposit", "not-an-address", "1", "1")
		assert.Error(t, err)
		_, err = run(t, srv.URL, "pool", "-1")
		assert.Error(t, err)
		_, err = run(t, srv.URL, "deposit", alice.Hex(), "1", "1.5")
		assert.Error(t, err)
	})
}
