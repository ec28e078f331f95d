package calculator

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// newRandInt generates a random amount up to a given number of bits.
func newRandInt(bits int) *uint256.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	return uint256.MustFromBig(n)
}

func TestMintAmount(t *testing.T) {
	t.Run("Bootstrap mints 1:1", func(t *testing.T) {
		minted, err := MintAmount(u(100), u(0), u(0))
		require.NoError(t, err)
		assert.Equal(t, uint64(100), minted.Uint64())

		// a pool that still holds dust but has no shares also bootstraps
		minted, err = MintAmount(u(100), u(7), u(0))
		require.NoError(t, err)
		assert.Equal(t, uint64(100), minted.Uint64())
	})

	t.Run("Proportional mint", func(t *testing.T) {
		minted, err := MintAmount(u(50), u(100), u(100))
		require.NoError(t, err)
		assert.Equal(t, uint64(50), minted.Uint64())
	})

	t.Run("Rounds down", func(t *testing.T) {
		// 10 * 100 / 150 = 6.66
		minted, err := MintAmount(u(10), u(150), u(100))
		require.NoError(t, err)
		assert.Equal(t, uint64(6), minted.Uint64())

		// 1 * 1 / 3 = 0
		minted, err = MintAmount(u(1), u(3), u(1))
		require.NoError(t, err)
		assert.True(t, minted.IsZero())
	})

	t.Run("Drained pool is invalid", func(t *testing.T) {
		_, err := MintAmount(u(10), u(0), u(100))
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("Nil inputs", func(t *testing.T) {
		_, err := MintAmount(nil, u(1), u(1))
		assert.ErrorIs(t, err, ErrNilAmount)
	})

	t.Run("Large values use a wide intermediate", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		// max * max / max must not overflow
		minted, err := MintAmount(max, max, max)
		require.NoError(t, err)
		assert.True(t, minted.Eq(max))

		// max * 2 / 1 does
		_, err = MintAmount(max, u(1), u(2))
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestPayoutAmount(t *testing.T) {
	t.Run("Proportional payout", func(t *testing.T) {
		payout, err := PayoutAmount(u(50), u(150), u(150))
		require.NoError(t, err)
		assert.Equal(t, uint64(50), payout.Uint64())
	})

	t.Run("Rounds down to zero", func(t *testing.T) {
		payout, err := PayoutAmount(u(1), u(1), u(3))
		require.NoError(t, err)
		assert.True(t, payout.IsZero())
	})

	t.Run("No supply is invalid", func(t *testing.T) {
		_, err := PayoutAmount(u(1), u(100), u(0))
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestIsSolvent(t *testing.T) {
	testCases := []struct {
		name   string
		price  uint64
		pay    uint64
		borrow uint64
		want   bool
	}{
		{"value exceeds borrow", 2, 10, 15, true},
		{"value below borrow", 2, 5, 15, false},
		{"equality fails", 3, 5, 15, false},
		{"zero price", 0, 100, 0, false},
		{"zero borrow", 1, 1, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := IsSolvent(u(tc.price), u(tc.pay), u(tc.borrow))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("overflowing value is solvent", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		got, err := IsSolvent(max, u(2), max)
		require.NoError(t, err)
		assert.True(t, got)
	})
}

func TestConvertAmount(t *testing.T) {
	got, err := ConvertAmount(u(10), u(3), u(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got.Uint64())

	_, err = ConvertAmount(u(10), u(3), u(0))
	assert.ErrorIs(t, err, ErrInvalidState)
}

// --- Invariant Tests (Simulating Fuzzing) ---

func TestShareMath_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		poolBalance := newRandInt(96)
		totalShares := newRandInt(96)
		amount := newRandInt(64)
		if poolBalance.IsZero() {
			poolBalance.SetOne()
		}
		if totalShares.IsZero() {
			totalShares.SetOne()
		}

		minted, err := MintAmount(amount, poolBalance, totalShares)
		require.NoError(t, err)

		// minted * poolBalance <= amount * totalShares (never over-issue)
		lhs := new(big.Int).Mul(minted.ToBig(), poolBalance.ToBig())
		rhs := new(big.Int).Mul(amount.ToBig(), totalShares.ToBig())
		assert.True(t, lhs.Cmp(rhs) <= 0)

		// redeeming what was just minted never returns more than was deposited
		newBalance := new(uint256.Int).Add(poolBalance, amount)
		newShares := new(uint256.Int).Add(totalShares, minted)
		payout, err := PayoutAmount(minted, newBalance, newShares)
		require.NoError(t, err)
		assert.True(t, payout.Cmp(amount) <= 0, "payout %s exceeds deposit %s", payout, amount)

		// payout never exceeds the pool
		assert.True(t, payout.Cmp(newBalance) <= 0)
	}
}
