package core

// calculateDecimals is 10^decimal as a Decimal.
func calculateDecimals(decimal uint8) (Decimal, error) {
	result := OneDecimal()
	ten := NewDecimal(10)
	var err error
	for i := uint8(0); i < decimal; i++ {
		result, err = result.Mul(ten)
		if err != nil {
			return Decimal{}, err
		}
	}
	return result, nil
}

// calculateAmount resolves the AmountAll marker against a balance.
func calculateAmount(amount, balance uint64) uint64 {
	if amount == AmountAll {
		return balance
	}
	return amount
}

// calculateAmountAndDecimal resolves an amount argument against a wad-exact
// bound. AmountAll settles the whole bound, any other amount is capped by it
// so the token leg and the wad leg never drift apart.
func calculateAmountAndDecimal(amount uint64, bound Decimal) (uint64, Decimal, error) {
	amountDecimal := NewDecimal(amount)
	if amount == AmountAll || amountDecimal.GreaterThan(bound) {
		settled, err := bound.CeilU64()
		if err != nil {
			return 0, Decimal{}, err
		}
		return settled, bound, nil
	}
	return amount, amountDecimal, nil
}

// amountMulRate scales a token amount by a ratio, rounding down.
func amountMulRate(amount uint64, rate Rate) (uint64, error) {
	scaled, err := NewDecimal(amount).Mul(rate)
	if err != nil {
		return 0, err
	}
	return scaled.FloorU64()
}

// calculateEffectiveValue weights a market value by a percent ratio.
func calculateEffectiveValue(marketValue Decimal, ratio uint8) (Decimal, error) {
	return marketValue.Mul(RateFromPercent(ratio))
}
