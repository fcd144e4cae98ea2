package core

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// SlotsPerYear assumes 2.5 slots per second.
	SlotsPerYear = 78_840_000

	// StaleAfterSlotsElapsed is the lax staleness window for refreshed state.
	StaleAfterSlotsElapsed = 10

	// MaxObligationReserves caps collaterals plus loans on one obligation.
	MaxObligationReserves = 12

	// AmountAll marks "the whole balance" in amount arguments.
	AmountAll = math.MaxUint64
)

var (
	ONE = decimal.NewFromInt(1)

	// MinLoansValue is the dust guard on total borrowed value, in quote units.
	MinLoansValue = MustDecimalFromString("0.1")

	SlotsPerYearDecimal = NewDecimal(SlotsPerYear)
)
