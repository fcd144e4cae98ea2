package core

// validateLiquidation checks that the position crossed its liquidation line
// and returns the seize rate for the chosen collateral.
//
// The liquidation line must never fall after a liquidation settles:
//
//	a: liquidation value ratio    cf: close ratio    k: seize rate
//	m: collateral value            n: loan value
//
//	  sum(a_i * m_i) - cf * n_j * k * a_k       sum(a_i * m_i)
//	 -------------------------------------  >= ----------------
//	           sum(n_i) - cf * n_j                 sum(n_i)
//
//	which reduces to  k <= sum(a_i * m_i) / (sum(n_i) * a_k)
func (o *Obligation) validateLiquidation(friend *Obligation, collateralIndex int) (Rate, error) {
	_, liquidationValue, loansValue, err := o.aggregates(friend)
	if err != nil {
		return Rate{}, err
	}

	if loansValue.LessThan(liquidationValue) {
		return Rate{}, ErrLiquidationNotAvailable
	}

	ratio := RateFromPercent(o.Collaterals[collateralIndex].LiquidationValueRatio)
	if ratio.IsZero() {
		return Rate{}, ErrLiquidationForbidden
	}
	weightedLoans, err := loansValue.Mul(ratio)
	if err != nil {
		return Rate{}, err
	}
	return liquidationValue.Div(weightedLoans)
}

// Liquidate repays part of a loan and seizes collateral at the clamped
// seize rate. With byCollateral the amount names collateral tokens to
// seize, otherwise it names loan tokens to repay. The obligation must be
// refreshed first.
func (o *Obligation) Liquidate(byCollateral bool, amount uint64, collateralIndex, loanIndex int,
	collateralReserve, loanReserve *Reserve, friend *Obligation) (uint64, RepaySettle, error) {
	if collateralIndex < 0 || collateralIndex >= len(o.Collaterals) {
		return 0, RepaySettle{}, ErrInvalidIndex
	}
	if loanIndex < 0 || loanIndex >= len(o.Loans) {
		return 0, RepaySettle{}, ErrInvalidIndex
	}
	if o.LastUpdate.Stale {
		return 0, RepaySettle{}, ErrObligationStale
	}
	if collateralReserve.LastUpdate.Stale || loanReserve.LastUpdate.Stale {
		return 0, RepaySettle{}, ErrReserveStale
	}

	seizeRate, err := o.validateLiquidation(friend, collateralIndex)
	if err != nil {
		return 0, RepaySettle{}, err
	}

	penalty := RateFromPercent(collateralReserve.Collateral.Config.LiquidationPenaltyRatio)
	optimalSeizeRate, err := penalty.Add(OneDecimal())
	if err != nil {
		return 0, RepaySettle{}, err
	}
	optimalSeizeRate = optimalSeizeRate.Min(seizeRate)

	if byCollateral {
		return o.liquidateByCollateral(amount, collateralIndex, loanIndex, collateralReserve, loanReserve, optimalSeizeRate)
	}
	return o.liquidateByLoan(amount, collateralIndex, loanIndex, collateralReserve, loanReserve, optimalSeizeRate)
}

func (o *Obligation) liquidateByCollateral(amount uint64, collateralIndex, loanIndex int,
	collateralReserve, loanReserve *Reserve, seizeRate Rate) (uint64, RepaySettle, error) {
	seizeAmount := calculateAmount(amount, o.Collaterals[collateralIndex].Amount)
	if seizeAmount > o.Collaterals[collateralIndex].Amount {
		return 0, RepaySettle{}, ErrCollateralInsufficient
	}
	o.Collaterals[collateralIndex].Amount -= seizeAmount
	if o.Collaterals[collateralIndex].Amount == 0 {
		o.Collaterals = append(o.Collaterals[:collateralIndex], o.Collaterals[collateralIndex+1:]...)
	}

	// seized collateral value, discounted by the seize rate, in loan tokens
	rate, err := collateralReserve.CollateralToLiquidityRate()
	if err != nil {
		return 0, RepaySettle{}, err
	}
	liquidityAmount, err := amountMulRate(seizeAmount, rate)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizedValue, err := collateralReserve.MarketValue(NewDecimal(liquidityAmount))
	if err != nil {
		return 0, RepaySettle{}, err
	}
	repayValue, err := seizedValue.Div(seizeRate)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	loanDecimals, err := loanReserve.TokenDecimals()
	if err != nil {
		return 0, RepaySettle{}, err
	}
	repayAmountDecimal, err := repayValue.Mul(loanDecimals)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	repayAmountDecimal, err = repayAmountDecimal.Div(loanReserve.Price)
	if err != nil {
		return 0, RepaySettle{}, err
	}

	if repayAmountDecimal.IsZero() {
		return 0, RepaySettle{}, ErrLiquidationRepayTooSmall
	}
	maxRepay, err := o.Loans[loanIndex].BorrowedAmountWads.Mul(RateFromPercent(o.Loans[loanIndex].CloseRatio))
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if repayAmountDecimal.GreaterThan(maxRepay) {
		return 0, RepaySettle{}, ErrLiquidationRepayTooMuch
	}

	borrowed, err := o.Loans[loanIndex].BorrowedAmountWads.Sub(repayAmountDecimal)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	o.Loans[loanIndex].BorrowedAmountWads = borrowed

	repayAmount, err := repayAmountDecimal.CeilU64()
	if err != nil {
		return 0, RepaySettle{}, err
	}
	return seizeAmount, RepaySettle{Amount: repayAmount, AmountDecimal: repayAmountDecimal}, nil
}

func (o *Obligation) liquidateByLoan(amount uint64, collateralIndex, loanIndex int,
	collateralReserve, loanReserve *Reserve, seizeRate Rate) (uint64, RepaySettle, error) {
	maxRepay, err := o.Loans[loanIndex].BorrowedAmountWads.Mul(RateFromPercent(o.Loans[loanIndex].CloseRatio))
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if amount != AmountAll && NewDecimal(amount).GreaterThan(maxRepay) {
		return 0, RepaySettle{}, ErrLiquidationRepayTooMuch
	}
	repayAmount, repayAmountDecimal, err := calculateAmountAndDecimal(amount, maxRepay)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if repayAmount == 0 {
		return 0, RepaySettle{}, ErrLiquidationRepayTooSmall
	}

	borrowed, err := o.Loans[loanIndex].BorrowedAmountWads.Sub(repayAmountDecimal)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	o.Loans[loanIndex].BorrowedAmountWads = borrowed

	// repaid value, grown by the seize rate, in collateral tokens
	repayValue, err := loanReserve.MarketValue(NewDecimal(repayAmount))
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizedValue, err := repayValue.Mul(seizeRate)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	collateralDecimals, err := collateralReserve.TokenDecimals()
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizeDecimal, err := seizedValue.Mul(collateralDecimals)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizeDecimal, err = seizeDecimal.Div(collateralReserve.Price)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	rate, err := collateralReserve.CollateralToLiquidityRate()
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizeDecimal, err = seizeDecimal.Div(rate)
	if err != nil {
		return 0, RepaySettle{}, err
	}
	seizeAmount, err := seizeDecimal.FloorU64()
	if err != nil {
		return 0, RepaySettle{}, err
	}
	if seizeAmount == 0 {
		return 0, RepaySettle{}, ErrLiquidationSeizeTooSmall
	}

	if seizeAmount > o.Collaterals[collateralIndex].Amount {
		return 0, RepaySettle{}, ErrCollateralInsufficient
	}
	o.Collaterals[collateralIndex].Amount -= seizeAmount
	if o.Collaterals[collateralIndex].Amount == 0 {
		o.Collaterals = append(o.Collaterals[:collateralIndex], o.Collaterals[collateralIndex+1:]...)
	}

	return seizeAmount, RepaySettle{Amount: repayAmount, AmountDecimal: repayAmountDecimal}, nil
}
