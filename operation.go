package lending

import (
	"context"
	"database/sql/driver"
	"encoding/json"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
)

type ActionType uint8

const (
	ActionNone ActionType = iota
	ActionDepositLiquidity
	ActionWithdrawLiquidity
	ActionPledgeCollateral
	ActionRedeemCollateral
	ActionReplaceCollateral
	ActionBorrow
	ActionRepay
	ActionLiquidate
	ActionFlashLoan
	ActionFlashLiquidate
	ActionBindFriend
	ActionUnbindFriend
	ActionReduceInsurance
)

func (a ActionType) String() string {
	switch a {
	case ActionDepositLiquidity:
		return "Deposit Liquidity"
	case ActionWithdrawLiquidity:
		return "Withdraw Liquidity"
	case ActionPledgeCollateral:
		return "Pledge Collateral"
	case ActionRedeemCollateral:
		return "Redeem Collateral"
	case ActionReplaceCollateral:
		return "Replace Collateral"
	case ActionBorrow:
		return "Borrow"
	case ActionRepay:
		return "Repay"
	case ActionLiquidate:
		return "Liquidate"
	case ActionFlashLoan:
		return "Flash Loan"
	case ActionFlashLiquidate:
		return "Flash Liquidate"
	case ActionBindFriend:
		return "Bind Friend"
	case ActionUnbindFriend:
		return "Unbind Friend"
	case ActionReduceInsurance:
		return "Reduce Insurance"
	default:
		return "Unknown"
	}
}

type EffectKind uint8

const (
	// EffectTransferIn moves tokens from the actor into the reserve pool.
	EffectTransferIn EffectKind = iota
	// EffectTransferOut moves tokens from the reserve pool to the actor.
	EffectTransferOut
	// EffectMintCollateral hands freshly minted collateral tokens to the actor.
	EffectMintCollateral
	// EffectBurnCollateral destroys collateral tokens taken from the actor.
	EffectBurnCollateral
)

func (k EffectKind) String() string {
	switch k {
	case EffectTransferIn:
		return "Transfer In"
	case EffectTransferOut:
		return "Transfer Out"
	case EffectMintCollateral:
		return "Mint Collateral"
	case EffectBurnCollateral:
		return "Burn Collateral"
	default:
		return "Unknown"
	}
}

type (
	// Effect is a token movement the caller must execute atomically with
	// the state write. The engine never moves tokens itself.
	Effect struct {
		Kind      EffectKind `json:"kind"`
		ReserveId uuid.UUID  `json:"reserveId"`
		AssetId   string     `json:"assetId"`
		Amount    uint64     `json:"amount"`
	}

	OperationStore interface {
		CreateOperation(ctx context.Context, operation *Operation) error
		ListOperations(ctx context.Context, owner string, action ActionType, createdBeforeAt, limit int64) ([]*Operation, error)
	}

	Operation struct {
		Id           uuid.UUID       `json:"id"`
		Owner        string          `json:"owner"`
		ObligationId uuid.UUID       `json:"obligationId"`
		Action       ActionType      `json:"action"`
		Detail       OperationDetail `json:"detail"`
		CreatedAt    int64           `json:"createdAt"`
	}

	OperationDetail struct {
		Action    ActionType `json:"action"`
		ReserveId uuid.UUID  `json:"reserveId"`
		Amount    uint64     `json:"amount"`
		Effects   []Effect   `json:"effects"`
	}
)

func NewOperation(clk clock.Clock, owner string, obligationId uuid.UUID, action ActionType, detail OperationDetail) *Operation {
	return &Operation{
		Id:           uuid.Must(uuid.NewV4()),
		Owner:        owner,
		ObligationId: obligationId,
		Action:       action,
		Detail:       detail,
		CreatedAt:    clk.Now().Unix(),
	}
}

func (d OperationDetail) Value() (driver.Value, error) {
	valueString, err := json.Marshal(d)
	return string(valueString), err
}

func (d *OperationDetail) Scan(value any) error {
	return json.Unmarshal(value.([]byte), d)
}
