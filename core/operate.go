package core

type (
	// ReserveChange is a closed set of governance updates applied to a
	// reserve. Every variant validates itself before it is applied.
	ReserveChange interface {
		Validate() error
		applyReserve(r *Reserve)
	}

	// ObligationChange is the matching closed set for per-entry obligation
	// parameters.
	ObligationChange interface {
		Validate() error
		applyObligation(o *Obligation) error
	}

	LiquidityControl struct {
		Enable bool `json:"enable"`
	}

	CollateralConfigUpdate struct {
		Config CollateralConfig `json:"config"`
	}

	LiquidityConfigUpdate struct {
		Config LiquidityConfig `json:"config"`
	}

	RateModelUpdate struct {
		RateModel RateModel `json:"rateModel"`
	}

	PriceUpdate struct {
		Price Decimal `json:"price"`
	}

	IndexedCollateralConfig struct {
		Index                 uint8 `json:"index"`
		BorrowValueRatio      uint8 `json:"borrowValueRatio"`
		LiquidationValueRatio uint8 `json:"liquidationValueRatio"`
	}

	IndexedLoanConfig struct {
		Index      uint8 `json:"index"`
		CloseRatio uint8 `json:"closeRatio"`
	}
)

func (c LiquidityControl) Validate() error { return nil }

func (c LiquidityControl) applyReserve(r *Reserve) {
	r.Liquidity.Enable = c.Enable
}

func (c CollateralConfigUpdate) Validate() error { return c.Config.Validate() }

func (c CollateralConfigUpdate) applyReserve(r *Reserve) {
	r.Collateral.Config = c.Config
}

func (c LiquidityConfigUpdate) Validate() error { return c.Config.Validate() }

func (c LiquidityConfigUpdate) applyReserve(r *Reserve) {
	r.Liquidity.Config = c.Config
}

func (c RateModelUpdate) Validate() error { return c.RateModel.Validate() }

func (c RateModelUpdate) applyReserve(r *Reserve) {
	r.RateModel = c.RateModel
}

func (c PriceUpdate) Validate() error {
	if c.Price.IsZero() {
		return ErrInvalidPrice
	}
	return nil
}

func (c PriceUpdate) applyReserve(r *Reserve) {
	r.Price = c.Price
}

func (c IndexedCollateralConfig) Validate() error {
	if c.BorrowValueRatio >= c.LiquidationValueRatio || c.LiquidationValueRatio >= 100 {
		return ErrInvalidConfig
	}
	return nil
}

func (c IndexedCollateralConfig) applyObligation(o *Obligation) error {
	if int(c.Index) >= len(o.Collaterals) {
		return ErrInvalidIndex
	}
	o.Collaterals[c.Index].BorrowValueRatio = c.BorrowValueRatio
	o.Collaterals[c.Index].LiquidationValueRatio = c.LiquidationValueRatio
	return nil
}

func (c IndexedLoanConfig) Validate() error {
	if c.CloseRatio >= 100 {
		return ErrInvalidConfig
	}
	return nil
}

func (c IndexedLoanConfig) applyObligation(o *Obligation) error {
	if int(c.Index) >= len(o.Loans) {
		return ErrInvalidIndex
	}
	o.Loans[c.Index].CloseRatio = c.CloseRatio
	return nil
}

// Operate applies a governance change and leaves the reserve stale so the
// next operation refreshes against the new parameters.
func (r *Reserve) Operate(change ReserveChange) error {
	if err := change.Validate(); err != nil {
		return err
	}
	change.applyReserve(r)
	r.MarkStale()
	return nil
}

// Operate applies a per-entry parameter change and leaves the obligation
// stale.
func (o *Obligation) Operate(change ObligationChange) error {
	if err := change.Validate(); err != nil {
		return err
	}
	if err := change.applyObligation(o); err != nil {
		return err
	}
	o.MarkStale()
	return nil
}
