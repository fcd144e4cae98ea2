package core

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMarketReserve backs TotalMint 1:1 with available liquidity, so the
// collateral exchange rate is exactly one.
func testMarketReserve(t *testing.T, tokenDecimal uint8, liquidity uint64) *Reserve {
	t.Helper()

	reserve := testReserve(t)
	reserve.TokenDecimal = tokenDecimal
	reserve.Liquidity.Available = liquidity
	reserve.Collateral.TotalMint = liquidity
	return reserve
}

func testObligation(t *testing.T) *Obligation {
	t.Helper()
	return NewObligation(100, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()).String(), 1_700_000_000)
}

func TestObligationRefresh(t *testing.T) {
	collateralReserve := testMarketReserve(t, 0, 10_000)
	loanReserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	obligation.Loans = []*Loan{{
		Reserve:            loanReserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(50),
		CloseRatio:         50,
	}}

	require.NoError(t, obligation.Refresh([]*Reserve{collateralReserve, loanReserve}))

	assert.True(t, obligation.CollateralsBorrowValue.Equal(NewDecimal(70)),
		"borrow value %s", obligation.CollateralsBorrowValue)
	assert.True(t, obligation.CollateralsLiquidationValue.Equal(NewDecimal(85)),
		"liquidation value %s", obligation.CollateralsLiquidationValue)
	assert.True(t, obligation.LoansValue.Equal(NewDecimal(50)),
		"loans value %s", obligation.LoansValue)
}

func TestObligationRefreshReservesNotMatched(t *testing.T) {
	collateralReserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	obligation.Loans = []*Loan{{
		Reserve:            uuid.Must(uuid.NewV4()),
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(50),
	}}

	err := obligation.Refresh([]*Reserve{collateralReserve})
	assert.ErrorIs(t, err, ErrReservesNotMatched)
}

func TestLoanAccrueInterest(t *testing.T) {
	reserve := testMarketReserve(t, 0, 10_000)
	reserve.Liquidity.AccBorrowRateWads = MustDecimalFromString("1.1")

	loan := &Loan{
		Reserve:            reserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(100),
	}
	require.NoError(t, loan.AccrueInterest(reserve))

	assert.True(t, loan.BorrowedAmountWads.Equal(NewDecimal(110)),
		"borrowed %s", loan.BorrowedAmountWads)
	assert.True(t, loan.AccBorrowRateWads.Equal(MustDecimalFromString("1.1")))

	// the reserve index can never run behind the loan's
	reserve.Liquidity.AccBorrowRateWads = OneDecimal()
	err := loan.AccrueInterest(reserve)
	assert.ErrorIs(t, err, ErrNegativeInterestRate)
}

func TestBorrowAgainstCollateral(t *testing.T) {
	collateralReserve := testMarketReserve(t, 0, 10_000)
	loanReserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	require.NoError(t, obligation.Refresh([]*Reserve{collateralReserve}))

	borrowed, err := obligation.NewBorrowIn(69, loanReserve.Id, loanReserve, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(69), borrowed)
	require.Len(t, obligation.Loans, 1)
	assert.True(t, obligation.Loans[0].BorrowedAmountWads.Equal(NewDecimal(69)))

	// two more tokens cross the 70 borrow value line
	_, err = obligation.BorrowIn(2, 0, loanReserve, nil)
	assert.ErrorIs(t, err, ErrObligationNotHealthy)
}

func TestBorrowDustGuard(t *testing.T) {
	collateralReserve := testMarketReserve(t, 0, 10_000)
	loanReserve := testMarketReserve(t, 2, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	require.NoError(t, obligation.Refresh([]*Reserve{collateralReserve}))

	// 5 raw units of a 2-decimal token are worth 0.05, below the floor
	_, err := obligation.NewBorrowIn(5, loanReserve.Id, loanReserve, nil)
	assert.ErrorIs(t, err, ErrBorrowTooSmall)
}

func TestBorrowWholeAvailable(t *testing.T) {
	collateralReserve := testMarketReserve(t, 0, 10_000)
	loanReserve := testMarketReserve(t, 0, 50)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	require.NoError(t, obligation.Refresh([]*Reserve{collateralReserve}))

	borrowed, err := obligation.NewBorrowIn(AmountAll, loanReserve.Id, loanReserve, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), borrowed)
}

func TestObligationReservesFull(t *testing.T) {
	reserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	for i := 0; i < MaxObligationReserves; i++ {
		obligation.Collaterals = append(obligation.Collaterals, &Collateral{
			Reserve: uuid.Must(uuid.NewV4()),
			Amount:  1,
		})
	}

	_, err := obligation.NewPledge(100, 1, reserve.Id, reserve, false)
	assert.ErrorIs(t, err, ErrObligationReservesFull)
	_, err = obligation.NewBorrowIn(1, reserve.Id, reserve, nil)
	assert.ErrorIs(t, err, ErrObligationReservesFull)
}

func TestObligationRepay(t *testing.T) {
	reserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Loans = []*Loan{{
		Reserve:            reserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(100),
	}}

	settle, err := obligation.Repay(40, 1000, 0, reserve, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), settle.Amount)
	require.Len(t, obligation.Loans, 1)
	assert.True(t, obligation.Loans[0].BorrowedAmountWads.Equal(NewDecimal(60)))

	// the wallet balance caps the settlement
	settle, err = obligation.Repay(AmountAll, 25, 0, reserve, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), settle.Amount)

	// settling the rest removes the entry
	settle, err = obligation.Repay(AmountAll, 1000, 0, reserve, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(35), settle.Amount)
	assert.Len(t, obligation.Loans, 0)
}

func TestObligationRepayCapsAtDebt(t *testing.T) {
	reserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Loans = []*Loan{{
		Reserve:            reserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(100),
	}}

	settle, err := obligation.Repay(500, 1000, 0, reserve, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), settle.Amount)
	assert.Len(t, obligation.Loans, 0)
}

func TestObligationRedeem(t *testing.T) {
	collateralReserve := testMarketReserve(t, 0, 10_000)
	loanReserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               collateralReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	obligation.Loans = []*Loan{{
		Reserve:            loanReserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(50),
		CloseRatio:         50,
	}}
	require.NoError(t, obligation.Refresh([]*Reserve{collateralReserve, loanReserve}))

	// 70 - 20 * 0.7 = 56 still covers the 50 debt
	redeemed, err := obligation.Redeem(20, 0, collateralReserve, nil, true, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), redeemed)
	assert.Equal(t, uint64(80), obligation.Collaterals[0].Amount)

	_, err = obligation.Redeem(AmountAll, 0, collateralReserve, nil, true, true)
	assert.ErrorIs(t, err, ErrObligationNotHealthy)
}

func TestRedeemWithoutLoan(t *testing.T) {
	reserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve: reserve.Id,
		Amount:  100,
	}}
	obligation.Loans = []*Loan{{
		Reserve:            uuid.Must(uuid.NewV4()),
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(1),
	}}

	_, err := obligation.RedeemWithoutLoan(AmountAll, 0, nil)
	assert.ErrorIs(t, err, ErrObligationHasDebt)

	obligation.Loans = nil
	redeemed, err := obligation.RedeemWithoutLoan(AmountAll, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), redeemed)
	assert.Len(t, obligation.Collaterals, 0)
}

func TestRedeemWithoutLoanFriendHasDebt(t *testing.T) {
	reserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve: reserve.Id,
		Amount:  100,
	}}
	friend := testObligation(t)
	friend.Loans = []*Loan{{
		Reserve:            uuid.Must(uuid.NewV4()),
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(1),
	}}

	_, err := obligation.RedeemWithoutLoan(AmountAll, 0, friend)
	assert.ErrorIs(t, err, ErrObligationHasDebt)
}

func TestCloseEmptyCollateral(t *testing.T) {
	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{
		{Reserve: uuid.Must(uuid.NewV4()), Amount: 0},
		{Reserve: uuid.Must(uuid.NewV4()), Amount: 5},
	}

	obligation.CloseEmptyCollateral(1)
	assert.Len(t, obligation.Collaterals, 2)

	obligation.CloseEmptyCollateral(0)
	require.Len(t, obligation.Collaterals, 1)
	assert.Equal(t, uint64(5), obligation.Collaterals[0].Amount)

	obligation.CloseEmptyCollateral(7)
	assert.Len(t, obligation.Collaterals, 1)
}

func TestReplaceCollateral(t *testing.T) {
	outReserve := testMarketReserve(t, 0, 10_000)
	inReserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               outReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	obligation.Loans = []*Loan{{
		Reserve:            uuid.Must(uuid.NewV4()),
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(50),
	}}
	obligation.CollateralsBorrowValue = NewDecimal(70)
	obligation.LoansValue = NewDecimal(50)

	_, _, err := obligation.ReplaceCollateral(1000, 100, 0, outReserve.Id, outReserve, inReserve, nil)
	assert.ErrorIs(t, err, ErrCollateralExists)

	in, out, err := obligation.ReplaceCollateral(1000, 120, 0, inReserve.Id, outReserve, inReserve, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), in)
	assert.Equal(t, uint64(100), out)
	require.Len(t, obligation.Collaterals, 1)
	assert.Equal(t, inReserve.Id, obligation.Collaterals[0].Reserve)
	assert.True(t, obligation.CollateralsBorrowValue.Equal(NewDecimal(84)),
		"borrow value %s", obligation.CollateralsBorrowValue)
}

func TestReplaceCollateralUnhealthy(t *testing.T) {
	outReserve := testMarketReserve(t, 0, 10_000)
	inReserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               outReserve.Id,
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	obligation.CollateralsBorrowValue = NewDecimal(70)
	obligation.LoansValue = NewDecimal(50)

	// 60 incoming tokens only cover 42 effective value against 50 of debt
	_, _, err := obligation.ReplaceCollateral(1000, 60, 0, inReserve.Id, outReserve, inReserve, nil)
	assert.ErrorIs(t, err, ErrObligationNotHealthy)
}

func TestBindFriend(t *testing.T) {
	obligation := testObligation(t)
	friend := testObligation(t)

	err := obligation.BindFriend(obligation.Id)
	assert.ErrorIs(t, err, ErrSelfPairing)

	require.NoError(t, obligation.BindFriend(friend.Id))
	assert.Equal(t, friend.Id, obligation.Friend)

	err = obligation.BindFriend(friend.Id)
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestUnbindFriend(t *testing.T) {
	obligation := testObligation(t)

	err := obligation.UnbindFriend()
	assert.ErrorIs(t, err, ErrNotBound)

	friend := testObligation(t)
	require.NoError(t, obligation.BindFriend(friend.Id))

	// loans still lean on the friend's collateral
	obligation.CollateralsLiquidationValue = NewDecimal(40)
	obligation.LoansValue = NewDecimal(50)
	err = obligation.UnbindFriend()
	assert.ErrorIs(t, err, ErrObligationNotHealthy)

	obligation.CollateralsLiquidationValue = NewDecimal(60)
	require.NoError(t, obligation.UnbindFriend())
	assert.Equal(t, uuid.Nil, obligation.Friend)
}

func TestFriendAggregation(t *testing.T) {
	obligation := testObligation(t)
	obligation.CollateralsBorrowValue = NewDecimal(40)
	obligation.LoansValue = NewDecimal(50)

	err := obligation.ValidateHealth(nil)
	assert.ErrorIs(t, err, ErrObligationNotHealthy)

	friend := testObligation(t)
	friend.CollateralsBorrowValue = NewDecimal(20)
	assert.NoError(t, obligation.ValidateHealth(friend))
}

func TestObligationFlags(t *testing.T) {
	obligation := testObligation(t)
	assert.False(t, obligation.GetFlag(ObligationFlagsInFlashLoan))

	obligation.UpdateFlag(true, ObligationFlagsInFlashLoan)
	assert.True(t, obligation.GetFlag(ObligationFlagsInFlashLoan))

	obligation.UpdateFlag(false, ObligationFlagsInFlashLoan)
	assert.False(t, obligation.GetFlag(ObligationFlagsInFlashLoan))
}

func TestObligationOperate(t *testing.T) {
	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{
		Reserve:               uuid.Must(uuid.NewV4()),
		Amount:                100,
		BorrowValueRatio:      70,
		LiquidationValueRatio: 85,
	}}
	obligation.Loans = []*Loan{{
		Reserve:    uuid.Must(uuid.NewV4()),
		CloseRatio: 50,
	}}
	obligation.LastUpdate.Update(100)

	require.NoError(t, obligation.Operate(IndexedCollateralConfig{Index: 0, BorrowValueRatio: 60, LiquidationValueRatio: 80}))
	assert.Equal(t, uint8(60), obligation.Collaterals[0].BorrowValueRatio)
	assert.Equal(t, uint8(80), obligation.Collaterals[0].LiquidationValueRatio)
	assert.True(t, obligation.LastUpdate.Stale)

	err := obligation.Operate(IndexedCollateralConfig{Index: 0, BorrowValueRatio: 80, LiquidationValueRatio: 80})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	err = obligation.Operate(IndexedCollateralConfig{Index: 1, BorrowValueRatio: 60, LiquidationValueRatio: 80})
	assert.ErrorIs(t, err, ErrInvalidIndex)

	require.NoError(t, obligation.Operate(IndexedLoanConfig{Index: 0, CloseRatio: 40}))
	assert.Equal(t, uint8(40), obligation.Loans[0].CloseRatio)
	err = obligation.Operate(IndexedLoanConfig{Index: 0, CloseRatio: 100})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestObligationClone(t *testing.T) {
	reserve := testMarketReserve(t, 0, 10_000)

	obligation := testObligation(t)
	obligation.Collaterals = []*Collateral{{Reserve: reserve.Id, Amount: 100}}
	obligation.Loans = []*Loan{{
		Reserve:            reserve.Id,
		AccBorrowRateWads:  OneDecimal(),
		BorrowedAmountWads: NewDecimal(50),
	}}

	clone := obligation.Clone()
	clone.Collaterals[0].Amount = 1
	clone.Loans[0].BorrowedAmountWads = NewDecimal(1)

	assert.Equal(t, uint64(100), obligation.Collaterals[0].Amount)
	assert.True(t, obligation.Loans[0].BorrowedAmountWads.Equal(NewDecimal(50)))
}
