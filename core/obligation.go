package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/soda-protocol/soda-lending/utils"
)

type (
	ObligationStore interface {
		CreateObligation(ctx context.Context, obligation *Obligation) error
		GetObligationById(ctx context.Context, obligationId uuid.UUID) (*Obligation, error)
		GetObligationByOwner(ctx context.Context, managerId uuid.UUID, owner string) (*Obligation, error)
		ListObligationByManagerId(ctx context.Context, managerId uuid.UUID) ([]*Obligation, error)
		UpdateObligation(ctx context.Context, obligation *Obligation) error
	}

	Collateral struct {
		Reserve               uuid.UUID `json:"reserve"`
		Amount                uint64    `json:"amount"`
		BorrowValueRatio      uint8     `json:"borrowValueRatio"`
		LiquidationValueRatio uint8     `json:"liquidationValueRatio"`
	}

	Loan struct {
		Reserve            uuid.UUID `json:"reserve"`
		AccBorrowRateWads  Decimal   `json:"accBorrowRateWads"`
		BorrowedAmountWads Decimal   `json:"borrowedAmountWads"`
		CloseRatio         uint8     `json:"closeRatio"`
	}

	ObligationFlags uint8

	Obligation struct {
		Id        uuid.UUID `json:"id"`
		ManagerId uuid.UUID `json:"managerId"`
		Owner     string    `json:"owner"`

		LastUpdate LastUpdate `json:"lastUpdate"`

		// Friend is the paired obligation, uuid.Nil when unbound.
		Friend uuid.UUID `json:"friend"`

		Collaterals                 []*Collateral `json:"collaterals"`
		CollateralsBorrowValue      Decimal       `json:"collateralsBorrowValue"`
		CollateralsLiquidationValue Decimal       `json:"collateralsLiquidationValue"`

		Loans      []*Loan `json:"loans"`
		LoansValue Decimal `json:"loansValue"`

		Flags ObligationFlags `json:"flags"`

		CreatedAt int64 `json:"createdAt"`
	}
)

const (
	ObligationFlagsInFlashLoan ObligationFlags = 1 << 0
)

func (f ObligationFlags) String() string {
	switch f {
	case ObligationFlagsInFlashLoan:
		return "In Flash Loan"
	default:
		return "Unknown"
	}
}

// collateralValue prices the collateral tokens at their liquidity
// equivalent.
func (c *Collateral) collateralValue(reserve *Reserve) (Decimal, error) {
	rate, err := reserve.CollateralToLiquidityRate()
	if err != nil {
		return Decimal{}, err
	}
	liquidityAmount, err := amountMulRate(c.Amount, rate)
	if err != nil {
		return Decimal{}, err
	}
	return reserve.MarketValue(NewDecimal(liquidityAmount))
}

// AccrueInterest catches the loan up with the reserve borrow index. A
// reserve index behind the loan means the index went backwards.
func (l *Loan) AccrueInterest(reserve *Reserve) error {
	reserveIndex := reserve.Liquidity.AccBorrowRateWads
	if reserveIndex.LessThan(l.AccBorrowRateWads) {
		return ErrNegativeInterestRate
	}
	if reserveIndex.Equal(l.AccBorrowRateWads) {
		return nil
	}

	compounded, err := reserveIndex.Div(l.AccBorrowRateWads)
	if err != nil {
		return err
	}
	borrowed, err := l.BorrowedAmountWads.Mul(compounded)
	if err != nil {
		return err
	}

	l.BorrowedAmountWads = borrowed
	l.AccBorrowRateWads = reserveIndex
	return nil
}

// loanValue prices the debt rounded up to whole token units.
func (l *Loan) loanValue(reserve *Reserve) (Decimal, error) {
	borrowed, err := l.BorrowedAmountWads.CeilU64()
	if err != nil {
		return Decimal{}, err
	}
	return reserve.MarketValue(NewDecimal(borrowed))
}

func NewObligation(slot uint64, managerId uuid.UUID, owner string, createdAt int64) *Obligation {
	return &Obligation{
		Id:                          uuid.Must(uuid.FromString(utils.GenUuidFromStrings(managerId.String(), owner))),
		ManagerId:                   managerId,
		Owner:                       owner,
		LastUpdate:                  NewLastUpdate(slot),
		Friend:                      uuid.Nil,
		Collaterals:                 nil,
		CollateralsBorrowValue:      ZeroDecimal(),
		CollateralsLiquidationValue: ZeroDecimal(),
		Loans:                       nil,
		LoansValue:                  ZeroDecimal(),
		CreatedAt:                   createdAt,
	}
}

func (o *Obligation) Clone() *Obligation {
	clone := *o
	clone.Collaterals = make([]*Collateral, len(o.Collaterals))
	for i, collateral := range o.Collaterals {
		c := *collateral
		clone.Collaterals[i] = &c
	}
	clone.Loans = make([]*Loan, len(o.Loans))
	for i, loan := range o.Loans {
		l := *loan
		clone.Loans[i] = &l
	}
	return &clone
}

func (o *Obligation) MarkStale() {
	o.LastUpdate.MarkStale()
}

func (o *Obligation) GetFlag(flag ObligationFlags) bool {
	return o.Flags&flag == flag
}

func (o *Obligation) UpdateFlag(value bool, flag ObligationFlags) {
	if value {
		o.Flags |= flag
	} else {
		o.Flags &= ^flag
	}
}

func (o *Obligation) FindCollateral(key uuid.UUID) (int, error) {
	for i, collateral := range o.Collaterals {
		if collateral.Reserve == key {
			return i, nil
		}
	}
	return 0, ErrCollateralNotFound
}

func (o *Obligation) FindLoan(key uuid.UUID) (int, error) {
	for i, loan := range o.Loans {
		if loan.Reserve == key {
			return i, nil
		}
	}
	return 0, ErrLoanNotFound
}

// BindFriend pairs this obligation with another one.
func (o *Obligation) BindFriend(other uuid.UUID) error {
	if other == o.Id {
		return ErrSelfPairing
	}
	if o.Friend != uuid.Nil {
		return ErrAlreadyBound
	}
	o.Friend = other
	return nil
}

// UnbindFriend drops the pairing. The obligation must be refreshed and
// stand above its own liquidation line without the friend's collateral.
func (o *Obligation) UnbindFriend() error {
	if o.Friend == uuid.Nil {
		return ErrNotBound
	}
	if o.CollateralsLiquidationValue.GreaterThan(o.LoansValue) {
		o.Friend = uuid.Nil
		return nil
	}
	return ErrObligationNotHealthy
}

// aggregates sums the cached values with the friend's, read only.
func (o *Obligation) aggregates(friend *Obligation) (borrowValue, liquidationValue, loansValue Decimal, err error) {
	borrowValue = o.CollateralsBorrowValue
	liquidationValue = o.CollateralsLiquidationValue
	loansValue = o.LoansValue
	if friend == nil {
		return
	}

	borrowValue, err = borrowValue.Add(friend.CollateralsBorrowValue)
	if err != nil {
		return
	}
	liquidationValue, err = liquidationValue.Add(friend.CollateralsLiquidationValue)
	if err != nil {
		return
	}
	loansValue, err = loansValue.Add(friend.LoansValue)
	return
}

// ValidateHealth passes while effective collateral covers the loans.
func (o *Obligation) ValidateHealth(friend *Obligation) error {
	borrowValue, _, loansValue, err := o.aggregates(friend)
	if err != nil {
		return err
	}
	if borrowValue.GreaterThanOrEqual(loansValue) {
		return nil
	}
	return ErrObligationNotHealthy
}

// Refresh recomputes the cached aggregates from the supplied reserves,
// consuming each entry exactly once, and accrues loan interest up to the
// reserve borrow indexes. Reserves must be refreshed first.
func (o *Obligation) Refresh(reserves []*Reserve) error {
	pool := make([]*Reserve, len(reserves))
	copy(pool, reserves)
	takeReserve := func(key uuid.UUID) *Reserve {
		for i, reserve := range pool {
			if reserve != nil && reserve.Id == key {
				pool[i] = nil
				return reserve
			}
		}
		return nil
	}

	borrowValue := ZeroDecimal()
	liquidationValue := ZeroDecimal()
	for _, collateral := range o.Collaterals {
		reserve := takeReserve(collateral.Reserve)
		if reserve == nil {
			return ErrReservesNotMatched
		}

		value, err := collateral.collateralValue(reserve)
		if err != nil {
			return err
		}
		effectiveBorrow, err := calculateEffectiveValue(value, collateral.BorrowValueRatio)
		if err != nil {
			return err
		}
		effectiveLiquidation, err := calculateEffectiveValue(value, collateral.LiquidationValueRatio)
		if err != nil {
			return err
		}
		borrowValue, err = borrowValue.Add(effectiveBorrow)
		if err != nil {
			return err
		}
		liquidationValue, err = liquidationValue.Add(effectiveLiquidation)
		if err != nil {
			return err
		}
	}

	loansValue := ZeroDecimal()
	for _, loan := range o.Loans {
		reserve := takeReserve(loan.Reserve)
		if reserve == nil {
			return ErrReservesNotMatched
		}

		if err := loan.AccrueInterest(reserve); err != nil {
			return err
		}
		value, err := loan.loanValue(reserve)
		if err != nil {
			return err
		}
		loansValue, err = loansValue.Add(value)
		if err != nil {
			return err
		}
	}

	o.CollateralsBorrowValue = borrowValue
	o.CollateralsLiquidationValue = liquidationValue
	o.LoansValue = loansValue
	return nil
}

// BorrowIn draws liquidity against an existing loan entry. The obligation
// must be refreshed first.
func (o *Obligation) BorrowIn(amount uint64, index int, reserve *Reserve, friend *Obligation) (uint64, error) {
	if index < 0 || index >= len(o.Loans) {
		return 0, ErrInvalidIndex
	}

	amount = calculateAmount(amount, reserve.Liquidity.Available)
	if err := o.increaseLoansValue(amount, reserve, friend); err != nil {
		return 0, err
	}

	borrowed, err := o.Loans[index].BorrowedAmountWads.Add(NewDecimal(amount))
	if err != nil {
		return 0, err
	}
	o.Loans[index].BorrowedAmountWads = borrowed
	return amount, nil
}

// NewBorrowIn opens a loan entry on a reserve the obligation has not
// borrowed from yet.
func (o *Obligation) NewBorrowIn(amount uint64, key uuid.UUID, reserve *Reserve, friend *Obligation) (uint64, error) {
	if len(o.Collaterals)+len(o.Loans) >= MaxObligationReserves {
		return 0, ErrObligationReservesFull
	}

	amount = calculateAmount(amount, reserve.Liquidity.Available)
	if err := o.increaseLoansValue(amount, reserve, friend); err != nil {
		return 0, err
	}

	o.Loans = append(o.Loans, &Loan{
		Reserve:            key,
		AccBorrowRateWads:  reserve.Liquidity.AccBorrowRateWads,
		BorrowedAmountWads: NewDecimal(amount),
		CloseRatio:         reserve.Liquidity.Config.CloseRatio,
	})
	return amount, nil
}

func (o *Obligation) increaseLoansValue(amount uint64, reserve *Reserve, friend *Obligation) error {
	value, err := reserve.MarketValue(NewDecimal(amount))
	if err != nil {
		return err
	}
	loansValue, err := o.LoansValue.Add(value)
	if err != nil {
		return err
	}
	o.LoansValue = loansValue

	if o.LoansValue.LessThan(MinLoansValue) {
		return ErrBorrowTooSmall
	}
	return o.ValidateHealth(friend)
}

// Repay settles a loan with min(requested, debt, balance) and removes the
// entry once the debt hits zero. Interest must be accrued first.
func (o *Obligation) Repay(amount, balance uint64, index int, reserve *Reserve, withUpdateValue bool) (RepaySettle, error) {
	if index < 0 || index >= len(o.Loans) {
		return RepaySettle{}, ErrInvalidIndex
	}

	bound := o.Loans[index].BorrowedAmountWads.Min(NewDecimal(balance))
	amount, amountDecimal, err := calculateAmountAndDecimal(amount, bound)
	if err != nil {
		return RepaySettle{}, err
	}

	borrowed, err := o.Loans[index].BorrowedAmountWads.Sub(amountDecimal)
	if err != nil {
		return RepaySettle{}, ErrRepayTooMuch
	}
	o.Loans[index].BorrowedAmountWads = borrowed

	if o.Loans[index].BorrowedAmountWads.IsZero() {
		o.Loans = append(o.Loans[:index], o.Loans[index+1:]...)
	}

	if withUpdateValue {
		value, err := reserve.MarketValue(NewDecimal(amount))
		if err != nil {
			return RepaySettle{}, err
		}
		loansValue, err := o.LoansValue.Sub(value)
		if err != nil {
			return RepaySettle{}, err
		}
		o.LoansValue = loansValue
	}

	return RepaySettle{Amount: amount, AmountDecimal: amountDecimal}, nil
}

// Pledge adds collateral tokens to an existing entry. Mark stale after.
func (o *Obligation) Pledge(balance, amount uint64, index int, reserve *Reserve, withUpdateValue bool) (uint64, error) {
	if index < 0 || index >= len(o.Collaterals) {
		return 0, ErrInvalidIndex
	}

	amount = calculateAmount(amount, balance)
	total := o.Collaterals[index].Amount + amount
	if total < o.Collaterals[index].Amount {
		return 0, ErrMathOverflow
	}
	o.Collaterals[index].Amount = total

	if withUpdateValue {
		changed, err := o.collateralBorrowValue(amount, o.Collaterals[index].BorrowValueRatio, reserve)
		if err != nil {
			return 0, err
		}
		borrowValue, err := o.CollateralsBorrowValue.Add(changed)
		if err != nil {
			return 0, err
		}
		o.CollateralsBorrowValue = borrowValue
	}

	return amount, nil
}

// NewPledge opens a collateral entry on a reserve not pledged yet.
func (o *Obligation) NewPledge(balance, amount uint64, key uuid.UUID, reserve *Reserve, withUpdateValue bool) (uint64, error) {
	if len(o.Collaterals)+len(o.Loans) >= MaxObligationReserves {
		return 0, ErrObligationReservesFull
	}

	amount = calculateAmount(amount, balance)
	o.Collaterals = append(o.Collaterals, &Collateral{
		Reserve:               key,
		Amount:                amount,
		BorrowValueRatio:      reserve.Collateral.Config.BorrowValueRatio,
		LiquidationValueRatio: reserve.Collateral.Config.LiquidationValueRatio,
	})

	if withUpdateValue {
		changed, err := o.collateralBorrowValue(amount, reserve.Collateral.Config.BorrowValueRatio, reserve)
		if err != nil {
			return 0, err
		}
		borrowValue, err := o.CollateralsBorrowValue.Add(changed)
		if err != nil {
			return 0, err
		}
		o.CollateralsBorrowValue = borrowValue
	}

	return amount, nil
}

func (o *Obligation) collateralBorrowValue(amount uint64, ratio uint8, reserve *Reserve) (Decimal, error) {
	rate, err := reserve.CollateralToLiquidityRate()
	if err != nil {
		return Decimal{}, err
	}
	liquidityAmount, err := amountMulRate(amount, rate)
	if err != nil {
		return Decimal{}, err
	}
	value, err := reserve.MarketValue(NewDecimal(liquidityAmount))
	if err != nil {
		return Decimal{}, err
	}
	return calculateEffectiveValue(value, ratio)
}

// Redeem releases collateral tokens. The obligation must be refreshed
// first when withValidate is set.
func (o *Obligation) Redeem(amount uint64, index int, reserve *Reserve, friend *Obligation, allowRemove, withValidate bool) (uint64, error) {
	if index < 0 || index >= len(o.Collaterals) {
		return 0, ErrInvalidIndex
	}

	amount = calculateAmount(amount, o.Collaterals[index].Amount)
	ratio := o.Collaterals[index].BorrowValueRatio
	if amount > o.Collaterals[index].Amount {
		return 0, ErrCollateralInsufficient
	}
	afterAmount := o.Collaterals[index].Amount - amount

	if allowRemove && afterAmount == 0 {
		o.Collaterals = append(o.Collaterals[:index], o.Collaterals[index+1:]...)
	} else {
		o.Collaterals[index].Amount = afterAmount
	}

	changed, err := o.collateralBorrowValue(amount, ratio, reserve)
	if err != nil {
		return 0, err
	}
	borrowValue, err := o.CollateralsBorrowValue.Sub(changed)
	if err != nil {
		return 0, err
	}
	o.CollateralsBorrowValue = borrowValue

	if withValidate {
		if err := o.ValidateHealth(friend); err != nil {
			return 0, err
		}
	}

	return amount, nil
}

func (o *Obligation) CloseEmptyCollateral(index int) {
	if index < 0 || index >= len(o.Collaterals) {
		return
	}
	if o.Collaterals[index].Amount == 0 {
		o.Collaterals = append(o.Collaterals[:index], o.Collaterals[index+1:]...)
	}
}

// RedeemWithoutLoan releases collateral without any health check, allowed
// only while this obligation and its friend carry no loans at all.
func (o *Obligation) RedeemWithoutLoan(amount uint64, index int, friend *Obligation) (uint64, error) {
	if index < 0 || index >= len(o.Collaterals) {
		return 0, ErrInvalidIndex
	}

	friendIsClear := friend == nil || len(friend.Loans) == 0
	if !friendIsClear || len(o.Loans) != 0 {
		return 0, ErrObligationHasDebt
	}

	amount = calculateAmount(amount, o.Collaterals[index].Amount)
	if amount > o.Collaterals[index].Amount {
		return 0, ErrCollateralInsufficient
	}
	o.Collaterals[index].Amount -= amount
	if o.Collaterals[index].Amount == 0 {
		o.Collaterals = append(o.Collaterals[:index], o.Collaterals[index+1:]...)
	}

	return amount, nil
}

// ReplaceCollateral swaps one collateral entry for another in a single
// health-checked step. The obligation must be refreshed first.
func (o *Obligation) ReplaceCollateral(balance, inAmount uint64, outIndex int, inKey uuid.UUID,
	outReserve, inReserve *Reserve, friend *Obligation) (uint64, uint64, error) {
	if outIndex < 0 || outIndex >= len(o.Collaterals) {
		return 0, 0, ErrInvalidIndex
	}
	if _, err := o.FindCollateral(inKey); err == nil {
		return 0, 0, ErrCollateralExists
	}

	inAmount = calculateAmount(inAmount, balance)
	outAmount := o.Collaterals[outIndex].Amount
	outRatio := o.Collaterals[outIndex].BorrowValueRatio

	o.Collaterals = append(o.Collaterals[:outIndex], o.Collaterals[outIndex+1:]...)
	o.Collaterals = append(o.Collaterals, &Collateral{
		Reserve:               inKey,
		Amount:                inAmount,
		BorrowValueRatio:      inReserve.Collateral.Config.BorrowValueRatio,
		LiquidationValueRatio: inReserve.Collateral.Config.LiquidationValueRatio,
	})

	outBorrowValue, err := o.collateralBorrowValue(outAmount, outRatio, outReserve)
	if err != nil {
		return 0, 0, err
	}
	inBorrowValue, err := o.collateralBorrowValue(inAmount, inReserve.Collateral.Config.BorrowValueRatio, inReserve)
	if err != nil {
		return 0, 0, err
	}

	borrowValue, err := o.CollateralsBorrowValue.Sub(outBorrowValue)
	if err != nil {
		return 0, 0, err
	}
	borrowValue, err = borrowValue.Add(inBorrowValue)
	if err != nil {
		return 0, 0, err
	}
	o.CollateralsBorrowValue = borrowValue

	if err := o.ValidateHealth(friend); err != nil {
		return 0, 0, err
	}

	return inAmount, outAmount, nil
}
