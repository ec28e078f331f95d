package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/events"
	"github.com/defistate/defistate-vault-go/ledger"
	"github.com/defistate/defistate-vault-go/protocols/shareregistry"
	"github.com/defistate/defistate-vault-go/vault/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Registry resolves the share asset of an underlying asset.
type Registry interface {
	ShareAssetOf(asset engine.AssetID) (engine.AssetID, error)
	Entries() []shareregistry.Entry
}

// Emitter publishes committed state transitions.
type Emitter interface {
	Emit(ev events.Event) events.Record
}

// Config holds the collaborators of a Vault.
type Config struct {
	Store      ledger.Store
	Registry   Registry
	Accounts   engine.SovereignAccounts
	Emitter    Emitter
	Logger     Logger
	Registerer prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Store == nil {
		return errors.New("config: Store is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Accounts.VaultID == c.Accounts.LiquidatorID {
		return errors.New("config: vault and liquidator module ids must differ")
	}
	if c.Emitter == nil {
		return errors.New("config: Emitter is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registerer == nil {
		return errors.New("config: Registerer is required")
	}
	return nil
}

// Vault pools deposits of registered assets in its sovereign account and
// issues proportional shares against them.
type Vault struct {
	store    ledger.Store
	registry Registry
	accounts engine.SovereignAccounts
	emitter  Emitter
	logger   Logger
	metrics  *Metrics
}

// New creates a Vault from cfg.
func New(cfg *Config) (*Vault, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Vault{
		store:    cfg.Store,
		registry: cfg.Registry,
		accounts: cfg.Accounts,
		emitter:  cfg.Emitter,
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registerer),
	}, nil
}

// Accounts returns the sovereign identities the vault operates with.
func (v *Vault) Accounts() engine.SovereignAccounts {
	return v.accounts
}

// Deposit moves amount of asset from depositor into the pool and mints shares
// to the depositor. It returns the number of shares minted, which may be zero
// when the deposit is too small to buy a whole share.
func (v *Vault) Deposit(depositor common.Address, asset engine.AssetID, amount *uint256.Int) (minted *uint256.Int, err error) {
	defer v.metrics.observe(opDeposit, time.Now(), &err)

	if amount == nil || amount.IsZero() {
		return nil, engine.ErrZeroAmount
	}
	if v.accounts.IsSovereign(depositor) {
		return nil, engine.ErrSovereignAccount
	}
	shareAsset, err := v.registry.ShareAssetOf(asset)
	if err != nil {
		return nil, err
	}

	pool := v.accounts.Vault()
	err = v.store.Commit(func(l ledger.Ledger) error {
		if l.Balance(asset, depositor).Lt(amount) {
			return engine.ErrInsufficientBalance
		}

		poolBalance := l.Balance(asset, pool)
		totalShares := l.TotalSupply(shareAsset)
		if !totalShares.IsZero() && poolBalance.IsZero() {
			return engine.ErrPoolDrained
		}

		shares, err := calculator.MintAmount(amount, poolBalance, totalShares)
		if err != nil {
			return mathError(err)
		}
		if err := l.Transfer(asset, depositor, pool, amount); err != nil {
			return err
		}
		if !shares.IsZero() {
			if err := l.Mint(shareAsset, depositor, shares); err != nil {
				return err
			}
		}
		minted = shares
		return nil
	}, func() {
		v.emitter.Emit(events.Deposited{
			Account: depositor,
			Asset:   asset,
			Amount:  amount.Clone(),
			Minted:  minted.Clone(),
		})
	})
	if err != nil {
		return nil, err
	}
	v.logger.Debug("deposit", "account", depositor, "asset", asset, "amount", amount, "minted", minted)
	return minted, nil
}

// Withdraw burns shareAmount of holder's shares in the pool of asset and pays
// out the proportional slice of the pool. The shares are burned even when the
// payout rounds down to zero.
func (v *Vault) Withdraw(holder common.Address, asset engine.AssetID, shareAmount *uint256.Int) (payout *uint256.Int, err error) {
	defer v.metrics.observe(opWithdraw, time.Now(), &err)

	if shareAmount == nil || shareAmount.IsZero() {
		return nil, engine.ErrZeroAmount
	}
	if v.accounts.IsSovereign(holder) {
		return nil, engine.ErrSovereignAccount
	}
	shareAsset, err := v.registry.ShareAssetOf(asset)
	if err != nil {
		return nil, err
	}

	pool := v.accounts.Vault()
	err = v.store.Commit(func(l ledger.Ledger) error {
		totalShares := l.TotalSupply(shareAsset)
		if totalShares.IsZero() {
			return engine.ErrInsufficientSupply
		}
		if l.Balance(shareAsset, holder).Lt(shareAmount) {
			return engine.ErrExceedWithdrawAmount
		}

		amount, err := calculator.PayoutAmount(shareAmount, l.Balance(asset, pool), totalShares)
		if err != nil {
			return mathError(err)
		}
		if err := l.Burn(shareAsset, holder, shareAmount); err != nil {
			return err
		}
		if !amount.IsZero() {
			if err := l.Transfer(asset, pool, holder, amount); err != nil {
				return err
			}
		}
		payout = amount
		return nil
	}, func() {
		v.emitter.Emit(events.Withdrawn{
			Account:     holder,
			Asset:       asset,
			ShareAmount: shareAmount.Clone(),
			Payout:      payout.Clone(),
		})
	})
	if err != nil {
		return nil, err
	}
	v.logger.Debug("withdraw", "account", holder, "asset", asset, "shares", shareAmount, "payout", payout)
	return payout, nil
}

// Borrow transfers amount of asset from the pool to the liquidator account in
// its own ledger transaction. No shares are burned.
func (v *Vault) Borrow(caller common.Address, asset engine.AssetID, amount *uint256.Int) (err error) {
	defer v.metrics.observe(opBorrow, time.Now(), &err)

	err = v.store.Commit(func(l ledger.Ledger) error {
		return v.BorrowWith(l, caller, asset, amount)
	}, func() {
		v.emitter.Emit(events.Borrowed{Asset: asset, Amount: amount.Clone()})
	})
	if err != nil {
		return err
	}
	v.logger.Info("borrow", "asset", asset, "amount", amount)
	return nil
}

// BorrowWith performs a borrow inside a ledger transaction owned by the caller.
// Its effects commit or roll back with that transaction.
func (v *Vault) BorrowWith(l ledger.Ledger, caller common.Address, asset engine.AssetID, amount *uint256.Int) error {
	liquidator := v.accounts.Liquidator()
	if caller != liquidator {
		return engine.ErrNotLiquidator
	}
	if amount == nil || amount.IsZero() {
		return engine.ErrZeroAmount
	}
	pool := v.accounts.Vault()
	if l.Balance(asset, pool).Lt(amount) {
		return engine.ErrExceedWithdrawAmount
	}
	return l.Transfer(asset, pool, liquidator, amount)
}

// Pool derives the current state of the pool of asset from the ledger.
func (v *Vault) Pool(asset engine.AssetID) (engine.PoolState, error) {
	shareAsset, err := v.registry.ShareAssetOf(asset)
	if err != nil {
		return engine.PoolState{}, err
	}
	var pool engine.PoolState
	err = v.store.View(func(r ledger.Reader) error {
		pool = v.poolState(r, asset, shareAsset)
		return nil
	})
	return pool, err
}

// State snapshots every registered pool in one consistent ledger read. The
// Sequence field is left zero: it is stamped by whoever tracks the event stream.
func (v *Vault) State() (*engine.State, error) {
	entries := v.registry.Entries()
	state := &engine.State{
		Timestamp: uint64(time.Now().UnixNano()),
		Pools:     make(map[engine.AssetID]engine.PoolState, len(entries)),
	}
	err := v.store.View(func(r ledger.Reader) error {
		for _, e := range entries {
			state.Pools[e.Asset] = v.poolState(r, e.Asset, e.ShareAsset)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// BalanceOf returns the ledger balance of account in asset.
func (v *Vault) BalanceOf(asset engine.AssetID, account common.Address) (*uint256.Int, error) {
	var balance *uint256.Int
	err := v.store.View(func(r ledger.Reader) error {
		balance = r.Balance(asset, account)
		return nil
	})
	return balance, err
}

func (v *Vault) poolState(r ledger.Reader, asset, shareAsset engine.AssetID) engine.PoolState {
	return engine.PoolState{
		Asset:       asset,
		ShareAsset:  shareAsset,
		Balance:     r.Balance(asset, v.accounts.Vault()),
		TotalShares: r.TotalSupply(shareAsset),
	}
}

// mathError maps share math failures onto the engine error taxonomy.
func mathError(err error) error {
	switch {
	case errors.Is(err, calculator.ErrOverflow):
		return fmt.Errorf("share math: %w", engine.ErrOverflow)
	case errors.Is(err, calculator.ErrInvalidState):
		return fmt.Errorf("share math: %w", engine.ErrPoolDrained)
	default:
		return err
	}
}
