package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liquidatableObligation crossed its liquidation line exactly: 200 tokens of
// collateral at a 60% liquidation ratio against 120 of debt.
func liquidatableObligation(t *testing.T) (*Obligation, *Reserve, *Reserve) {
	t.Helper()

	collateralReserve := testMarketReserve(t, 0, 10_000)
	loanReserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                200,
		BorrowValueRatio:      50,
		LiquidationValueRatio: 60,
	}}
	obligation.Loans = []*Loan{{
		Reserve:            loanReserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(120),
		CloseRatio:         50,
	}}
	require.NoError(t, obligation.Refresh([]*Reserve{collateralReserve, loanReserve}))
	obligation.LastUpdate.Update(100)
	require.True(t, obligation.CollateralsLiquidationValue.Equal(NewDecimal(120)))
	require.True(t, obligation.LoansValue.Equal(NewDecimal(120)))

	return obligation, collateralReserve, loanReserve
}

func TestLiquidateStale(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)
	obligation.MarkStale()

	_, _, err := obligation.Liquidate(false, 50, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrObligationStale)

	obligation.LastUpdate.Update(100)
	loanReserve.MarkStale()
	_, _, err = obligation.Liquidate(false, 50, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrReserveStale)
}

func TestLiquidateNotAvailable(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	// the raw seize rate 120/(120*0.6) clamps down to 1 + 10% penalty
	obligation.LoansValue = NewDecimal(110)

	_, _, err := obligation.Liquidate(false, 50, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrLiquidationNotAvailable)
}

func TestLiquidateForbidden(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)
	obligation.Collaterals[0].LiquidationValueRatio = 0

	_, _, err := obligation.Liquidate(false, 50, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrLiquidationForbidden)
}

func TestLiquidateByLoan(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	seized, settle, err := obligation.Liquidate(false, 50, 0, 0, collateralReserve, loanReserve, nil)
	require.NoError(t, err)

	// 50 repaid at the clamped 1.1 seize rate takes 55 collateral tokens
	assert.Equal(t, uint64(55), seized)
	assert.Equal(t, uint64(50), settle.Amount)
	assert.True(t, settle.AmountDecimal.Equal(NewDecimal(50)))
	assert.Equal(t, uint64(145), obligation.Collaterals[0].Amount)
	assert.True(t, obligation.Loans[0].BorrowedAmountWads.Equal(NewDecimal(70)),
		"borrowed %s", obligation.Loans[0].BorrowedAmountWads)
}

func TestLiquidateByLoanCloseRatioCap(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	// close ratio 50 caps the repayment at 60 of the 120 debt
	_, _, err := obligation.Liquidate(false, 70, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrLiquidationRepayTooMuch)

	_, settle, err := obligation.Liquidate(false, AmountAll, 0, 0, collateralReserve, loanReserve, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), settle.Amount)
}

func TestLiquidateByCollateral(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	seized, settle, err := obligation.Liquidate(true, 55, 0, 0, collateralReserve, loanReserve, nil)
	require.NoError(t, err)

	// 55 seized tokens discount back to a 50 repayment at the 1.1 rate
	assert.Equal(t, uint64(55), seized)
	assert.Equal(t, uint64(50), settle.Amount)
	assert.Equal(t, uint64(145), obligation.Collaterals[0].Amount)
	assert.True(t, obligation.Loans[0].BorrowedAmountWads.Equal(NewDecimal(70)),
		"borrowed %s", obligation.Loans[0].BorrowedAmountWads)
}

func TestLiquidateByCollateralRepayTooMuch(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	// the whole 200 tokens would repay ~181, far over the 60 cap
	_, _, err := obligation.Liquidate(true, AmountAll, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrLiquidationRepayTooMuch)
}

func TestLiquidateByCollateralRepayTooSmall(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	// at a 0.5 exchange rate a single collateral token rounds to nothing
	collateralReserve.Liquidity.Available = 5_000
	obligation.CollateralsLiquidationValue = NewDecimal(120)

	_, _, err := obligation.Liquidate(true, 1, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrLiquidationRepayTooSmall)
}

func TestLiquidateSeizeTooSmall(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	// pricey collateral: one repaid token is worth a fraction of one
	collateralReserve.Price = NewDecimal(1000)
	obligation.Loans[0].CloseRatio = 50

	_, _, err := obligation.Liquidate(false, 1, 0, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrLiquidationSeizeTooSmall)
}

func TestLiquidateInvalidIndex(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	_, _, err := obligation.Liquidate(false, 50, 1, 0, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrInvalidIndex)
	_, _, err = obligation.Liquidate(false, 50, 0, 1, collateralReserve, loanReserve, nil)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestLiquidateFriendCollateralShields(t *testing.T) {
	obligation, collateralReserve, loanReserve := liquidatableObligation(t)

	friend := testObligation(t)
	friend.Friend = obligation.Id
	friend.CollateralsLiquidationValue = NewDecimal(30)
	obligation.Friend = friend.Id

	_, _, err := obligation.Liquidate(false, 50, 0, 0, collateralReserve, loanReserve, nil)
	require.NoError(t, err)

	obligation2, collateralReserve2, loanReserve2 := liquidatableObligation(t)
	obligation2.Friend = friend.Id
	_, _, err = obligation2.Liquidate(false, 50, 0, 0, collateralReserve2, loanReserve2, friend)
	assert.ErrorIs(t, err, ErrLiquidationNotAvailable)
}

func TestLiquidateSeizeRateUnclamped(t *testing.T) {
	collateralReserve := testMarketReserve(t, 0, 10_000)
	loanReserve := testMarketReserve(t, 0, 10_000)

	// deep underwater: seize rate 100/(200*0.6) < 1 + penalty, so it is not
	// clamped and the liquidator absorbs part of the loss
	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                100,
		BorrowValueRatio:      50,
		LiquidationValueRatio: 60,
	}}
	obligation.Loans = []*Loan{{
		Reserve:            loanReserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(200),
		CloseRatio:         50,
	}}
	require.NoError(t, obligation.Refresh([]*Reserve{collateralReserve, loanReserve}))
	obligation.LastUpdate.Update(100)

	seized, settle, err := obligation.Liquidate(false, 60, 0, 0, collateralReserve, loanReserve, nil)
	require.NoError(t, err)

	// seize rate 60/(200*0.6) = 0.5
	assert.Equal(t, uint64(60), settle.Amount)
	assert.Equal(t, uint64(30), seized)
}
