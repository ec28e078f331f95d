package liquidator

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/ledger"
	"github.com/defistate/defistate-vault-go/oracle"
	"github.com/defistate/defistate-vault-go/vault/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// StrategyRequest describes the unwind a strategy is asked to execute.
type StrategyRequest struct {
	TargetUser common.Address
	PayAsset   engine.AssetID
	GetAsset   engine.AssetID
	PayAmount  *uint256.Int
	// MaxLiquidatable bounds the amount of GetAsset that may be seized. Zero means unbounded.
	MaxLiquidatable *uint256.Int
}

// Strategy executes the unwind of a position inside the coordinator's ledger
// transaction and returns the amount of GetAsset it obtained. It must reject
// callers other than the liquidator account.
type Strategy interface {
	Liquidate(ctx context.Context, l ledger.Ledger, caller common.Address, req StrategyRequest) (*uint256.Int, error)
}

// StrategyFunc adapts an ordinary function to the Strategy interface.
type StrategyFunc func(ctx context.Context, l ledger.Ledger, caller common.Address, req StrategyRequest) (*uint256.Int, error)

// Liquidate calls f.
func (f StrategyFunc) Liquidate(ctx context.Context, l ledger.Ledger, caller common.Address, req StrategyRequest) (*uint256.Int, error) {
	return f(ctx, l, caller, req)
}

// SeizeStrategyConfig configures a SeizeStrategy.
type SeizeStrategyConfig struct {
	Oracle   oracle.PriceOracle
	Accounts engine.SovereignAccounts
	// Bonus is the premium, as a fraction, the liquidator receives on top of the
	// fair value of what it pays. 0.05 is a 5% bonus.
	Bonus decimal.Decimal
}

func (c *SeizeStrategyConfig) validate() error {
	if c.Oracle == nil {
		return errors.New("config: Oracle is required")
	}
	if c.Bonus.IsNegative() {
		return errors.New("config: Bonus cannot be negative")
	}
	return nil
}

// SeizeStrategy pays PayAmount of PayAsset from the liquidator account to the
// target and seizes collateral of GetAsset worth that much plus a bonus.
type SeizeStrategy struct {
	oracle     oracle.PriceOracle
	accounts   engine.SovereignAccounts
	multiplier decimal.Decimal
}

// NewSeizeStrategy creates a SeizeStrategy.
func NewSeizeStrategy(cfg *SeizeStrategyConfig) (*SeizeStrategy, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SeizeStrategy{
		oracle:     cfg.Oracle,
		accounts:   cfg.Accounts,
		multiplier: decimal.NewFromInt(1).Add(cfg.Bonus),
	}, nil
}

// Liquidate implements Strategy.
func (s *SeizeStrategy) Liquidate(ctx context.Context, l ledger.Ledger, caller common.Address, req StrategyRequest) (*uint256.Int, error) {
	liquidator := s.accounts.Liquidator()
	if caller != liquidator {
		return nil, engine.ErrNotLiquidator
	}
	if req.PayAmount == nil || req.PayAmount.IsZero() {
		return nil, engine.ErrZeroAmount
	}

	getAmount, err := s.quote(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := l.Transfer(req.PayAsset, liquidator, req.TargetUser, req.PayAmount); err != nil {
		return nil, fmt.Errorf("pay target: %w", err)
	}
	if !getAmount.IsZero() {
		if err := l.Transfer(req.GetAsset, req.TargetUser, liquidator, getAmount); err != nil {
			return nil, fmt.Errorf("seize collateral: %w", err)
		}
	}
	return getAmount, nil
}

// quote computes floor(floor(PayAmount*price(Pay)/price(Get)) * (1+bonus)),
// capped at MaxLiquidatable.
func (s *SeizeStrategy) quote(ctx context.Context, req StrategyRequest) (*uint256.Int, error) {
	payPrice, err := s.oracle.Price(ctx, req.PayAsset)
	if err != nil {
		return nil, err
	}
	getPrice, err := s.oracle.Price(ctx, req.GetAsset)
	if err != nil {
		return nil, err
	}
	if getPrice.IsZero() {
		return nil, fmt.Errorf("asset %d has zero price: %w", req.GetAsset, engine.ErrPriceUnavailable)
	}

	fair, err := calculator.ConvertAmount(req.PayAmount, payPrice, getPrice)
	if err != nil {
		return nil, fmt.Errorf("value payment: %w", engine.ErrOverflow)
	}

	withBonus := decimal.NewFromBigInt(fair.ToBig(), 0).Mul(s.multiplier).Floor()
	getAmount, overflow := uint256.FromBig(withBonus.BigInt())
	if overflow {
		return nil, fmt.Errorf("apply bonus: %w", engine.ErrOverflow)
	}

	if limit := req.MaxLiquidatable; limit != nil && !limit.IsZero() && getAmount.Gt(limit) {
		getAmount = limit.Clone()
	}
	return getAmount, nil
}
