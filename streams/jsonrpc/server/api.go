package server

import (
	"context"
	"errors"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

const (
	// RpcNamespace is the namespace under which the vault API is registered.
	RpcNamespace = "vault"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Vault is the vault surface served over JSON-RPC.
type Vault interface {
	Deposit(depositor common.Address, asset engine.AssetID, amount *uint256.Int) (*uint256.Int, error)
	Withdraw(holder common.Address, asset engine.AssetID, shareAmount *uint256.Int) (*uint256.Int, error)
	Borrow(caller common.Address, asset engine.AssetID, amount *uint256.Int) error
	Pool(asset engine.AssetID) (engine.PoolState, error)
	BalanceOf(asset engine.AssetID, account common.Address) (*uint256.Int, error)
	Accounts() engine.SovereignAccounts
}

// Registrar maps underlying assets to share assets.
type Registrar interface {
	Register(asset, shareAsset engine.AssetID) (bool, error)
}

// Liquidator runs liquidations.
type Liquidator interface {
	Liquidate(ctx context.Context, caller common.Address, req liquidator.Request) (*liquidator.Result, error)
}

// Config holds the components served by the API.
type Config struct {
	Vault       Vault
	Registry    Registrar
	Liquidator  Liquidator
	Broadcaster *Broadcaster
	Logger      Logger
}

func (c *Config) validate() error {
	if c.Vault == nil {
		return errors.New("config: Vault is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Liquidator == nil {
		return errors.New("config: Liquidator is required")
	}
	if c.Broadcaster == nil {
		return errors.New("config: Broadcaster is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// API is the vault JSON-RPC service. Every exported method is an RPC method in
// the "vault" namespace. The caller argument is the principal authenticated by
// the host; it is trusted as given.
type API struct {
	vault       Vault
	registry    Registrar
	liquidator  Liquidator
	broadcaster *Broadcaster
	logger      Logger
}

// NewAPI creates the service from cfg.
func NewAPI(cfg *Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &API{
		vault:       cfg.Vault,
		registry:    cfg.Registry,
		liquidator:  cfg.Liquidator,
		broadcaster: cfg.Broadcaster,
		logger:      cfg.Logger,
	}, nil
}

// NewRPCServer returns an rpc.Server with api registered under RpcNamespace.
func NewRPCServer(api *API) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(RpcNamespace, api); err != nil {
		return nil, err
	}
	return server, nil
}

// AccountsResult lists the sovereign accounts of the deployment.
type AccountsResult struct {
	VaultID      string         `json:"vaultId"`
	Vault        common.Address `json:"vault"`
	LiquidatorID string         `json:"liquidatorId"`
	Liquidator   common.Address `json:"liquidator"`
}

// Register maps asset to shareAsset and reports whether the entry is new.
func (api *API) Register(asset, shareAsset engine.AssetID) (bool, error) {
	added, err := api.registry.Register(asset, shareAsset)
	return added, engine.ToWire(err)
}

// Deposit returns the number of shares minted.
func (api *API) Deposit(caller common.Address, asset engine.AssetID, amount *uint256.Int) (*uint256.Int, error) {
	minted, err := api.vault.Deposit(caller, asset, amount)
	return minted, engine.ToWire(err)
}

// Withdraw returns the amount of asset paid out.
func (api *API) Withdraw(caller common.Address, asset engine.AssetID, shareAmount *uint256.Int) (*uint256.Int, error) {
	payout, err := api.vault.Withdraw(caller, asset, shareAmount)
	return payout, engine.ToWire(err)
}

// Borrow is restricted to the liquidator account.
func (api *API) Borrow(caller common.Address, asset engine.AssetID, amount *uint256.Int) error {
	return engine.ToWire(api.vault.Borrow(caller, asset, amount))
}

// Liquidate runs one liquidation on behalf of caller.
func (api *API) Liquidate(ctx context.Context, caller common.Address, req liquidator.Request) (*liquidator.Result, error) {
	res, err := api.liquidator.Liquidate(ctx, caller, req)
	return res, engine.ToWire(err)
}

// Pool returns the current state of one pool.
func (api *API) Pool(asset engine.AssetID) (engine.PoolState, error) {
	pool, err := api.vault.Pool(asset)
	return pool, engine.ToWire(err)
}

// State returns the last snapshot published on the state stream.
func (api *API) State() *engine.State {
	return api.broadcaster.Snapshot()
}

// BalanceOf returns the ledger balance of account in asset.
func (api *API) BalanceOf(asset engine.AssetID, account common.Address) (*uint256.Int, error) {
	balance, err := api.vault.BalanceOf(asset, account)
	return balance, engine.ToWire(err)
}

// Accounts returns the sovereign accounts.
func (api *API) Accounts() AccountsResult {
	accounts := api.vault.Accounts()
	return AccountsResult{
		VaultID:      accounts.VaultID.String(),
		Vault:        accounts.Vault(),
		LiquidatorID: accounts.LiquidatorID.String(),
		Liquidator:   accounts.Liquidator(),
	}
}

// SubscribeStateStream pushes a full snapshot followed by a diff per event.
func (api *API) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	events, unsubscribe := api.broadcaster.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case ev := <-events:
				if err := notifier.Notify(rpcSub.ID, ev); err != nil {
					api.logger.Warn("failed to notify subscriber", "subscription", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}
