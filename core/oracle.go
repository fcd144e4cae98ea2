package core

import "context"

type (
	// PriceQuote is an already-parsed oracle reading. How it was fetched
	// and verified is the caller's concern.
	PriceQuote struct {
		AssetId   string  `json:"assetId"`
		Price     Decimal `json:"price"`
		ValidAsOf uint64  `json:"validAsOf"`
	}

	PriceOracle interface {
		GetPriceQuote(ctx context.Context, assetId string) (*PriceQuote, error)
	}
)

// IsStale reports whether the quote is too old to refresh a reserve with.
func (q *PriceQuote) IsStale(slot uint64) bool {
	return slot < q.ValidAsOf || slot-q.ValidAsOf > StaleAfterSlotsElapsed
}
