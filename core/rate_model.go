package core

type (
	// RateModel is the kinked borrow-rate curve. Offset and Optimal are
	// wad-scaled annual rates, Kink is the utilization percentage where the
	// slope changes, Max is the annual rate as utilization approaches one.
	RateModel struct {
		Offset  uint64  `json:"offset"`
		Optimal uint64  `json:"optimal"`
		Kink    uint8   `json:"kink"`
		Max     Decimal `json:"max"`

		// IndexMultiplier scales the whole curve by an external asset-index
		// signal. Zero means the plain single-dimension curve.
		IndexMultiplier Rate `json:"indexMultiplier"`
	}
)

func (m RateModel) Validate() error {
	if m.Kink == 0 || m.Kink >= 100 {
		return ErrInvalidRateModel
	}
	if m.Offset >= m.Optimal {
		return ErrInvalidRateModel
	}
	if m.Max.LessThanOrEqual(RateFromScaled(m.Optimal)) {
		return ErrInvalidRateModel
	}
	return nil
}

// BorrowRatePerSlot evaluates the curve at the given utilization and scales
// the annual rate down to one slot.
func (m RateModel) BorrowRatePerSlot(utilization Rate) (Rate, error) {
	annual, err := m.annualBorrowRate(utilization)
	if err != nil {
		return Rate{}, err
	}
	if !m.IndexMultiplier.IsZero() {
		annual, err = annual.Mul(m.IndexMultiplier)
		if err != nil {
			return Rate{}, err
		}
	}
	return annual.Div(SlotsPerYearDecimal)
}

func (m RateModel) annualBorrowRate(utilization Rate) (Rate, error) {
	kink := RateFromPercent(m.Kink)
	offset := RateFromScaled(m.Offset)
	optimal := RateFromScaled(m.Optimal)

	if utilization.LessThanOrEqual(kink) {
		// offset + u * (optimal - offset) / kink
		slope, err := optimal.Sub(offset)
		if err != nil {
			return Rate{}, err
		}
		r, err := utilization.Mul(slope)
		if err != nil {
			return Rate{}, err
		}
		r, err = r.Div(kink)
		if err != nil {
			return Rate{}, err
		}
		return r.Add(offset)
	}

	// optimal + (u - kink) * (max - optimal) / (1 - kink)
	slope, err := m.Max.Sub(optimal)
	if err != nil {
		return Rate{}, err
	}
	excess, err := utilization.Sub(kink)
	if err != nil {
		return Rate{}, err
	}
	r, err := excess.Mul(slope)
	if err != nil {
		return Rate{}, err
	}
	span, err := OneDecimal().Sub(kink)
	if err != nil {
		return Rate{}, err
	}
	r, err = r.Div(span)
	if err != nil {
		return Rate{}, err
	}
	return r.Add(optimal)
}
