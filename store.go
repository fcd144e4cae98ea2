package lending

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/soda-protocol/soda-lending/core"
	"gorm.io/gorm"
)

type (
	// Stores bundles the persistence interfaces the engine works against.
	Stores struct {
		Managers    core.ManagerStore
		Reserves    core.ReserveStore
		Obligations core.ObligationStore
		Operations  OperationStore
	}
)

// FindOrCreateObligation looks an owner's obligation up within a market and
// opens an empty one on first use.
func FindOrCreateObligation(ctx context.Context, clk clock.Clock, stores Stores, managerId uuid.UUID, owner string, slot uint64) (*core.Obligation, error) {
	if _, err := stores.Managers.GetManagerById(ctx, managerId); err != nil {
		return nil, err
	}

	obligation, err := stores.Obligations.GetObligationByOwner(ctx, managerId, owner)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			obligation = core.NewObligation(slot, managerId, owner, clk.Now().Unix())
			if err = stores.Obligations.CreateObligation(ctx, obligation); err != nil {
				return nil, err
			}
			return obligation, nil
		}
		return nil, err
	}
	return obligation, nil
}
