package core

type LastUpdate struct {
	Slot  uint64 `json:"slot"`
	Stale bool   `json:"stale"`
}

func NewLastUpdate(slot uint64) LastUpdate {
	return LastUpdate{Slot: slot, Stale: true}
}

func (l *LastUpdate) Update(slot uint64) {
	l.Slot = slot
	l.Stale = false
}

func (l *LastUpdate) MarkStale() {
	l.Stale = true
}

func (l LastUpdate) SlotsElapsed(slot uint64) (uint64, error) {
	if slot < l.Slot {
		return 0, ErrInvalidSlot
	}
	return slot - l.Slot, nil
}

// IsStrictStale requires a refresh within the same slot.
func (l LastUpdate) IsStrictStale(slot uint64) bool {
	return l.Stale || slot != l.Slot
}

// IsLaxStale tolerates StaleAfterSlotsElapsed slots since the last refresh.
func (l LastUpdate) IsLaxStale(slot uint64) bool {
	return l.Stale || slot < l.Slot || slot-l.Slot > StaleAfterSlotsElapsed
}
