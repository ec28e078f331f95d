package liquidator

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/events"
	"github.com/defistate/defistate-vault-go/ledger"
	"github.com/defistate/defistate-vault-go/oracle"
	"github.com/defistate/defistate-vault-go/vault/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
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

// Borrower is the part of the vault the coordinator draws funds from.
type Borrower interface {
	BorrowWith(l ledger.Ledger, caller common.Address, asset engine.AssetID, amount *uint256.Int) error
	Accounts() engine.SovereignAccounts
}

// Emitter publishes committed state transitions.
type Emitter interface {
	Emit(ev events.Event) events.Record
}

// Request describes one liquidation.
type Request struct {
	TargetUser common.Address `json:"targetUser"`
	PayAsset   engine.AssetID `json:"payAsset"`
	GetAsset   engine.AssetID `json:"getAsset"`
	PayAmount  *uint256.Int   `json:"payAmount"`
	// MaxLiquidatable bounds the collateral seized in this call. Zero means unbounded.
	MaxLiquidatable *uint256.Int `json:"maxLiquidatable"`
	BorrowAmount    *uint256.Int `json:"borrowAmount"`
}

// Result reports a committed liquidation.
type Result struct {
	ID        uuid.UUID    `json:"id"`
	Price     *uint256.Int `json:"price"`
	GetAmount *uint256.Int `json:"getAmount"`
}

// Config holds the collaborators of a Coordinator.
type Config struct {
	Oracle   oracle.PriceOracle
	Vault    Borrower
	Store    ledger.Store
	Strategy Strategy
	// Finders, when non-empty, is the set of callers allowed to trigger liquidations.
	Finders    []common.Address
	Emitter    Emitter
	Logger     Logger
	Registerer prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Oracle == nil {
		return errors.New("config: Oracle is required")
	}
	if c.Vault == nil {
		return errors.New("config: Vault is required")
	}
	if c.Store == nil {
		return errors.New("config: Store is required")
	}
	if c.Strategy == nil {
		return errors.New("config: Strategy is required")
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

// Coordinator runs liquidations: it checks solvency, borrows from the vault and
// delegates the unwind to a Strategy, all in one ledger transaction.
type Coordinator struct {
	oracle   oracle.PriceOracle
	vault    Borrower
	store    ledger.Store
	strategy Strategy
	finders  map[common.Address]struct{}
	emitter  Emitter
	logger   Logger
	metrics  *Metrics
}

// NewCoordinator creates a Coordinator from cfg.
func NewCoordinator(cfg *Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	finders := make(map[common.Address]struct{}, len(cfg.Finders))
	for _, f := range cfg.Finders {
		finders[f] = struct{}{}
	}
	return &Coordinator{
		oracle:   cfg.Oracle,
		vault:    cfg.Vault,
		store:    cfg.Store,
		strategy: cfg.Strategy,
		finders:  finders,
		emitter:  cfg.Emitter,
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registerer),
	}, nil
}

// Liquidate executes req on behalf of caller. Nothing is committed unless every
// step succeeds.
func (c *Coordinator) Liquidate(ctx context.Context, caller common.Address, req Request) (res *Result, err error) {
	timer := prometheus.NewTimer(c.metrics.liquidationDuration)
	defer func() {
		timer.ObserveDuration()
		c.metrics.liquidationsTotal.WithLabelValues(resultLabel(err)).Inc()
	}()

	if len(c.finders) > 0 {
		if _, ok := c.finders[caller]; !ok {
			return nil, engine.ErrNotFinder
		}
	}
	if c.vault.Accounts().IsSovereign(req.TargetUser) {
		return nil, engine.ErrSovereignAccount
	}
	payAmount := orZero(req.PayAmount)
	borrowAmount := orZero(req.BorrowAmount)
	maxLiquidatable := orZero(req.MaxLiquidatable)

	price, err := c.oracle.Price(ctx, req.PayAsset)
	if err != nil {
		return nil, fmt.Errorf("price of asset %d: %w", req.PayAsset, err)
	}

	solvent, err := calculator.IsSolvent(price, payAmount, borrowAmount)
	if err != nil {
		return nil, err
	}
	if !solvent {
		return nil, engine.ErrBorrowExceedsLiquidation
	}

	liquidator := c.vault.Accounts().Liquidator()
	var getAmount *uint256.Int
	id := uuid.New()
	err = c.store.Commit(func(tx ledger.Ledger) error {
		if err := c.vault.BorrowWith(tx, liquidator, req.PayAsset, borrowAmount); err != nil {
			return err
		}
		got, err := c.strategy.Liquidate(ctx, tx, liquidator, StrategyRequest{
			TargetUser:      req.TargetUser,
			PayAsset:        req.PayAsset,
			GetAsset:        req.GetAsset,
			PayAmount:       payAmount,
			MaxLiquidatable: maxLiquidatable,
		})
		if err != nil {
			return err
		}
		if got == nil {
			got = new(uint256.Int)
		}
		if !maxLiquidatable.IsZero() && got.Gt(maxLiquidatable) {
			return engine.ErrMaxLiquidatableExceeded
		}
		getAmount = got
		return nil
	}, func() {
		c.emitter.Emit(events.Liquidated{
			ID:           id,
			TargetUser:   req.TargetUser,
			PayAsset:     req.PayAsset,
			PayAmount:    payAmount.Clone(),
			GetAsset:     req.GetAsset,
			GetAmount:    getAmount.Clone(),
			BorrowAmount: borrowAmount.Clone(),
		})
	})
	if err != nil {
		c.logger.Warn("liquidation aborted", "target_user", req.TargetUser, "pay_asset", req.PayAsset, "error", err)
		return nil, err
	}

	res = &Result{ID: id, Price: price, GetAmount: getAmount}
	c.logger.Info("liquidation committed",
		"id", res.ID,
		"target_user", req.TargetUser,
		"pay_asset", req.PayAsset,
		"pay_amount", payAmount,
		"get_asset", req.GetAsset,
		"get_amount", getAmount,
	)
	return res, nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
