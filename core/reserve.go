package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/soda-protocol/soda-lending/utils"
)

// WadScaled is the raw scale of wad-encoded config rates.
const WadScaled uint64 = 1_000_000_000_000_000_000

type (
	ReserveStore interface {
		CreateReserve(ctx context.Context, reserve *Reserve) error
		GetReserveById(ctx context.Context, reserveId uuid.UUID) (*Reserve, error)
		ListReserveByManagerId(ctx context.Context, managerId uuid.UUID) ([]*Reserve, error)
		UpdateReserve(ctx context.Context, reserve *Reserve) error
	}

	Reserve struct {
		Id        uuid.UUID `json:"id"`
		ManagerId uuid.UUID `json:"managerId"`

		AssetId      string `json:"assetId"`
		TokenDecimal uint8  `json:"tokenDecimal"`

		LastUpdate LastUpdate `json:"lastUpdate"`
		Price      Decimal    `json:"price"`

		RateModel  RateModel      `json:"rateModel"`
		Collateral CollateralInfo `json:"collateral"`
		Liquidity  LiquidityInfo  `json:"liquidity"`

		CreatedAt int64 `json:"createdAt"`
	}

	CollateralConfig struct {
		BorrowValueRatio        uint8 `json:"borrowValueRatio"`
		LiquidationValueRatio   uint8 `json:"liquidationValueRatio"`
		LiquidationPenaltyRatio uint8 `json:"liquidationPenaltyRatio"`
	}

	CollateralInfo struct {
		TotalMint uint64           `json:"totalMint"`
		Config    CollateralConfig `json:"config"`
	}

	LiquidityConfig struct {
		CloseRatio       uint8  `json:"closeRatio"`
		BorrowTaxRate    uint8  `json:"borrowTaxRate"`
		FlashLoanFeeRate uint64 `json:"flashLoanFeeRate"`
		MaxDeposit       uint64 `json:"maxDeposit"`
	}

	LiquidityInfo struct {
		Enable             bool            `json:"enable"`
		Available          uint64          `json:"available"`
		FlashLoanFee       uint64          `json:"flashLoanFee"`
		AccBorrowRateWads  Decimal         `json:"accBorrowRateWads"`
		BorrowedAmountWads Decimal         `json:"borrowedAmountWads"`
		InsuranceWads      Decimal         `json:"insuranceWads"`
		Config             LiquidityConfig `json:"config"`
	}

	// RepaySettle carries a repayment both as the token amount to move and
	// the exact wad value to burn from the debt.
	RepaySettle struct {
		Amount        uint64  `json:"amount"`
		AmountDecimal Decimal `json:"amountDecimal"`
	}
)

func (c CollateralConfig) Validate() error {
	if c.BorrowValueRatio >= c.LiquidationValueRatio || c.LiquidationValueRatio >= 100 {
		return ErrInvalidConfig
	}
	if c.LiquidationPenaltyRatio >= 100 {
		return ErrInvalidConfig
	}
	return nil
}

func (c LiquidityConfig) Validate() error {
	if c.CloseRatio >= 100 || c.BorrowTaxRate >= 100 {
		return ErrInvalidConfig
	}
	if c.FlashLoanFeeRate >= WadScaled {
		return ErrInvalidConfig
	}
	if c.MaxDeposit == 0 {
		return ErrInvalidConfig
	}
	return nil
}

func (c *CollateralInfo) Mint(amount uint64) error {
	total := c.TotalMint + amount
	if total < c.TotalMint {
		return ErrMathOverflow
	}
	c.TotalMint = total
	return nil
}

func (c *CollateralInfo) Burn(amount uint64) error {
	if amount > c.TotalMint {
		return ErrCollateralInsufficient
	}
	c.TotalMint -= amount
	return nil
}

func (l *LiquidityInfo) TotalSupply() (Decimal, error) {
	return NewDecimal(l.Available).Add(l.BorrowedAmountWads)
}

func (l *LiquidityInfo) UtilizationRate() (Rate, error) {
	totalSupply, err := l.TotalSupply()
	if err != nil {
		return Rate{}, err
	}
	if totalSupply.IsZero() {
		return ZeroDecimal(), nil
	}
	return l.BorrowedAmountWads.Div(totalSupply)
}

func (l *LiquidityInfo) Deposit(amount uint64) error {
	if !l.Enable {
		return ErrReserveDisabled
	}

	available := l.Available + amount
	if available < l.Available {
		return ErrMathOverflow
	}
	totalSupply, err := NewDecimal(available).Add(l.BorrowedAmountWads)
	if err != nil {
		return err
	}
	if totalSupply.GreaterThan(NewDecimal(l.Config.MaxDeposit)) {
		return ErrDepositLimitExceeded
	}

	l.Available = available
	return nil
}

func (l *LiquidityInfo) Withdraw(amount uint64) error {
	if !l.Enable {
		return ErrReserveDisabled
	}
	if amount > l.Available {
		return ErrInsufficientLiquidity
	}
	l.Available -= amount
	return nil
}

func (l *LiquidityInfo) BorrowOut(amount uint64) error {
	if !l.Enable {
		return ErrReserveDisabled
	}
	if amount > l.Available {
		return ErrInsufficientLiquidity
	}
	l.Available -= amount

	borrowed, err := l.BorrowedAmountWads.Add(NewDecimal(amount))
	if err != nil {
		return err
	}
	l.BorrowedAmountWads = borrowed
	return nil
}

// FlashLoanBorrowOut lends amount within one settlement and returns the
// total the borrower owes back and the fee part of it. The fee rounds up.
func (l *LiquidityInfo) FlashLoanBorrowOut(amount uint64) (uint64, uint64, error) {
	if err := l.BorrowOut(amount); err != nil {
		return 0, 0, err
	}

	feeDecimal, err := NewDecimal(amount).Mul(RateFromScaled(l.Config.FlashLoanFeeRate))
	if err != nil {
		return 0, 0, err
	}
	fee, err := feeDecimal.CeilU64()
	if err != nil {
		return 0, 0, err
	}

	totalRepay := amount + fee
	if totalRepay < amount {
		return 0, 0, ErrMathOverflow
	}
	return totalRepay, fee, nil
}

func (l *LiquidityInfo) Repay(settle RepaySettle) error {
	available := l.Available + settle.Amount
	if available < l.Available {
		return ErrMathOverflow
	}
	l.Available = available

	borrowed, err := l.BorrowedAmountWads.Sub(settle.AmountDecimal)
	if err != nil {
		return err
	}
	l.BorrowedAmountWads = borrowed
	return nil
}

func (l *LiquidityInfo) FlashLoanRepay(amount, fee uint64) error {
	if err := l.Repay(RepaySettle{Amount: amount, AmountDecimal: NewDecimal(amount)}); err != nil {
		return err
	}

	flashLoanFee := l.FlashLoanFee + fee
	if flashLoanFee < l.FlashLoanFee {
		return ErrMathOverflow
	}
	l.FlashLoanFee = flashLoanFee
	return nil
}

// ReduceInsurance pays out accumulated protocol revenue, drawing the flash
// loan fee pool first and the insurance wads after.
func (l *LiquidityInfo) ReduceInsurance(amount uint64) error {
	if amount <= l.FlashLoanFee {
		l.FlashLoanFee -= amount
		return nil
	}

	rest := amount - l.FlashLoanFee
	insurance, err := l.InsuranceWads.Sub(NewDecimal(rest))
	if err != nil {
		return ErrInsuranceInsufficient
	}
	l.FlashLoanFee = 0
	l.InsuranceWads = insurance
	return nil
}

func NewReserve(clk clock.Clock, managerId uuid.UUID, assetId string, tokenDecimal uint8, slot uint64,
	rateModel RateModel, collateralConfig CollateralConfig, liquidityConfig LiquidityConfig) *Reserve {
	return NewReserveWithCreateTime(clk, managerId, assetId, tokenDecimal, slot, rateModel, collateralConfig, liquidityConfig, clk.Now())
}

func NewReserveWithCreateTime(_ clock.Clock, managerId uuid.UUID, assetId string, tokenDecimal uint8, slot uint64,
	rateModel RateModel, collateralConfig CollateralConfig, liquidityConfig LiquidityConfig, createTime time.Time) *Reserve {
	return &Reserve{
		Id:           uuid.Must(uuid.FromString(utils.GenUuidFromStrings(managerId.String(), assetId))),
		ManagerId:    managerId,
		AssetId:      assetId,
		TokenDecimal: tokenDecimal,
		LastUpdate:   NewLastUpdate(slot),
		Price:        ZeroDecimal(),
		RateModel:    rateModel,
		Collateral: CollateralInfo{
			TotalMint: 0,
			Config:    collateralConfig,
		},
		Liquidity: LiquidityInfo{
			Enable:             true,
			Available:          0,
			FlashLoanFee:       0,
			AccBorrowRateWads:  OneDecimal(),
			BorrowedAmountWads: ZeroDecimal(),
			InsuranceWads:      ZeroDecimal(),
			Config:             liquidityConfig,
		},
		CreatedAt: createTime.Unix(),
	}
}

func (r *Reserve) Clone() *Reserve {
	clone := *r
	return &clone
}

func (r *Reserve) MarkStale() {
	r.LastUpdate.MarkStale()
}

// TokenDecimals is 10^TokenDecimal, the divisor from raw amounts to whole
// tokens.
func (r *Reserve) TokenDecimals() (Decimal, error) {
	return calculateDecimals(r.TokenDecimal)
}

// MarketValue prices a raw token amount in quote units.
func (r *Reserve) MarketValue(amountDecimal Decimal) (Decimal, error) {
	decimals, err := r.TokenDecimals()
	if err != nil {
		return Decimal{}, err
	}
	value, err := r.Price.Mul(amountDecimal)
	if err != nil {
		return Decimal{}, err
	}
	return value.Div(decimals)
}

// LiquidityToCollateralRate is the mint rate for deposits. Insurance is
// excluded from the depositors' share on both directions so a deposit
// immediately withdrawn never comes back larger.
func (r *Reserve) LiquidityToCollateralRate() (Rate, error) {
	if r.Collateral.TotalMint == 0 {
		return OneDecimal(), nil
	}
	supply, err := r.depositorsSupply()
	if err != nil {
		return Rate{}, err
	}
	return NewDecimal(r.Collateral.TotalMint).Div(supply)
}

func (r *Reserve) CollateralToLiquidityRate() (Rate, error) {
	supply, err := r.depositorsSupply()
	if err != nil {
		return Rate{}, err
	}
	return supply.Div(NewDecimal(r.Collateral.TotalMint))
}

func (r *Reserve) depositorsSupply() (Decimal, error) {
	totalSupply, err := r.Liquidity.TotalSupply()
	if err != nil {
		return Decimal{}, err
	}
	return totalSupply.Sub(r.Liquidity.InsuranceWads)
}

func (r *Reserve) ExchangeLiquidityToCollateral(amount uint64) (uint64, error) {
	rate, err := r.LiquidityToCollateralRate()
	if err != nil {
		return 0, err
	}
	minted, err := NewDecimal(amount).Mul(rate)
	if err != nil {
		return 0, err
	}
	return minted.FloorU64()
}

func (r *Reserve) ExchangeCollateralToLiquidity(amount uint64) (uint64, error) {
	rate, err := r.CollateralToLiquidityRate()
	if err != nil {
		return 0, err
	}
	out, err := NewDecimal(amount).Mul(rate)
	if err != nil {
		return 0, err
	}
	return out.FloorU64()
}

// Deposit exchanges liquidity for freshly minted collateral tokens. A
// rejected deposit leaves the reserve untouched.
func (r *Reserve) Deposit(amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	mintAmount, err := r.ExchangeLiquidityToCollateral(amount)
	if err != nil {
		return 0, err
	}
	if err := r.Liquidity.Deposit(amount); err != nil {
		return 0, err
	}
	if err := r.Collateral.Mint(mintAmount); err != nil {
		return 0, err
	}
	return mintAmount, nil
}

// Withdraw burns collateral tokens and releases the backing liquidity.
func (r *Reserve) Withdraw(burnAmount uint64) (uint64, error) {
	if burnAmount == 0 {
		return 0, ErrInvalidAmount
	}
	amount, err := r.ExchangeCollateralToLiquidity(burnAmount)
	if err != nil {
		return 0, err
	}
	if err := r.Collateral.Burn(burnAmount); err != nil {
		return 0, err
	}
	if err := r.Liquidity.Withdraw(amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// CurrentBorrowRate evaluates the rate model at the current utilization.
func (r *Reserve) CurrentBorrowRate() (Rate, error) {
	utilization, err := r.Liquidity.UtilizationRate()
	if err != nil {
		return Rate{}, err
	}
	return r.RateModel.BorrowRatePerSlot(utilization)
}

// AccrueInterest compounds the borrow rate over the elapsed slots. The debt
// and the borrow index grow by the same factor, the borrow tax share of the
// growth goes to insurance.
func (r *Reserve) AccrueInterest(borrowRate Rate, slot uint64) error {
	elapsed, err := r.LastUpdate.SlotsElapsed(slot)
	if err != nil {
		return err
	}
	if elapsed == 0 {
		return nil
	}

	onePlusRate, err := OneDecimal().Add(borrowRate)
	if err != nil {
		return err
	}
	compounded, err := onePlusRate.Pow(elapsed)
	if err != nil {
		return err
	}

	growth, err := compounded.Sub(OneDecimal())
	if err != nil {
		return err
	}
	feeRate, err := growth.Mul(RateFromPercent(r.Liquidity.Config.BorrowTaxRate))
	if err != nil {
		return err
	}
	insurance, err := r.Liquidity.BorrowedAmountWads.Mul(feeRate)
	if err != nil {
		return err
	}

	insuranceWads, err := r.Liquidity.InsuranceWads.Add(insurance)
	if err != nil {
		return err
	}
	accBorrowRateWads, err := r.Liquidity.AccBorrowRateWads.Mul(compounded)
	if err != nil {
		return err
	}
	borrowedAmountWads, err := r.Liquidity.BorrowedAmountWads.Mul(compounded)
	if err != nil {
		return err
	}

	r.Liquidity.InsuranceWads = insuranceWads
	r.Liquidity.AccBorrowRateWads = accBorrowRateWads
	r.Liquidity.BorrowedAmountWads = borrowedAmountWads
	return nil
}
