package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
)

type (
	ManagerStore interface {
		CreateManager(ctx context.Context, manager *Manager) error
		GetManagerById(ctx context.Context, id uuid.UUID) (*Manager, error)
		GetManagerByName(ctx context.Context, name string) (*Manager, error)
		ListManagers(ctx context.Context) ([]*Manager, error)
		UpdateManager(ctx context.Context, manager *Manager) error
	}

	// Manager is the market authority a set of reserves belongs to. All
	// values across its reserves are quoted in the same currency.
	Manager struct {
		Id    uuid.UUID `json:"id"`
		Owner string    `json:"owner"`

		Name         string `json:"name"`
		QuoteDecimal uint8  `json:"quoteDecimal"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}
)

func NewManager(clk clock.Clock, owner, name string, quoteDecimal uint8) *Manager {
	return &Manager{
		Id:           uuid.Must(uuid.NewV4()),
		Owner:        owner,
		Name:         name,
		QuoteDecimal: quoteDecimal,
		CreatedAt:    clk.Now().Unix(),
		UpdatedAt:    clk.Now().Unix(),
	}
}

func (m *Manager) Update(clk clock.Clock, owner, name string) {
	m.Owner = owner
	m.Name = name
	m.UpdatedAt = clk.Now().Unix()
}
