package lending

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/soda-protocol/soda-lending/core"
)

type (
	// TokenBalanceProvider reports the pool's on-chain token balance. Flash
	// settlements are proven by balance delta, not by trusting the callback.
	TokenBalanceProvider interface {
		TokenBalance(ctx context.Context, assetId string) (uint64, error)
	}

	// FlashCallback runs the caller's leg of a flash settlement. It gets
	// the effects the caller must execute before the proof is taken.
	FlashCallback func(ctx context.Context, effects []Effect) error
)

// FlashLoan lends reserve liquidity within a single settlement. The
// callback must return amount plus the ceil-rounded fee to the pool, the
// proof is the pool balance delta.
func (e *Engine) FlashLoan(ctx context.Context, owner string, reserveId uuid.UUID, amount uint64,
	balances TokenBalanceProvider, callback FlashCallback) ([]Effect, error) {
	if callback == nil {
		return nil, core.ErrInvalidFlashLoanCallback
	}
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return nil, err
	}
	if err := e.refreshReserve(ctx, reserve); err != nil {
		return nil, err
	}

	before, err := balances.TokenBalance(ctx, reserve.AssetId)
	if err != nil {
		return nil, err
	}

	totalRepay, fee, err := reserve.Liquidity.FlashLoanBorrowOut(amount)
	if err != nil {
		return nil, err
	}

	borrowEffects := []Effect{
		{Kind: EffectTransferOut, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: amount},
	}
	if err := callback(ctx, borrowEffects); err != nil {
		return nil, err
	}

	after, err := balances.TokenBalance(ctx, reserve.AssetId)
	if err != nil {
		return nil, err
	}
	// the loan stays in flight, only the fee may land on top
	if after < before || after-before < fee {
		return nil, core.ErrFlashLoanNotSettled
	}

	if err := reserve.Liquidity.FlashLoanRepay(amount, fee); err != nil {
		return nil, err
	}
	if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
		return nil, err
	}

	effects := append(borrowEffects,
		Effect{Kind: EffectTransferIn, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: totalRepay})
	if err := e.audit(ctx, owner, uuid.Nil, ActionFlashLoan, reserve.Id, amount, effects); err != nil {
		return nil, err
	}
	return effects, nil
}

// FlashLiquidate settles a liquidation with flash-borrowed repay funds: the
// loan is repaid out of a flash borrow against the loan reserve, the seized
// collateral goes to the callback to be turned back into loan tokens, and
// the pool balance delta proves the flash leg came home with its fee.
func (e *Engine) FlashLiquidate(ctx context.Context, liquidator string, obligationId, collateralReserveId, loanReserveId uuid.UUID,
	amount uint64, byCollateral bool, balances TokenBalanceProvider, callback FlashCallback) (uint64, core.RepaySettle, error) {
	if callback == nil {
		return 0, core.RepaySettle{}, core.ErrInvalidFlashLoanCallback
	}
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return 0, core.RepaySettle{}, err
	}
	friend, err := e.loadFriend(ctx, obligation)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}

	// flag first so reentrant calls from the callback bounce off; on
	// failure the stored flag is lifted without persisting any mutation
	flagged := obligation.Clone()
	flagged.UpdateFlag(true, core.ObligationFlagsInFlashLoan)
	if err := e.stores.Obligations.UpdateObligation(ctx, flagged); err != nil {
		return 0, core.RepaySettle{}, err
	}
	obligation.UpdateFlag(true, core.ObligationFlagsInFlashLoan)

	settled := false
	defer func() {
		if !settled {
			flagged.UpdateFlag(false, core.ObligationFlagsInFlashLoan)
			_ = e.stores.Obligations.UpdateObligation(ctx, flagged)
		}
	}()

	cache, err := e.refreshObligation(ctx, obligation, friend)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}
	collateralReserve, ok := cache[collateralReserveId]
	if !ok {
		return 0, core.RepaySettle{}, core.ErrCollateralNotFound
	}
	loanReserve, ok := cache[loanReserveId]
	if !ok {
		return 0, core.RepaySettle{}, core.ErrLoanNotFound
	}

	collateralIndex, err := obligation.FindCollateral(collateralReserveId)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}
	loanIndex, err := obligation.FindLoan(loanReserveId)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}

	before, err := balances.TokenBalance(ctx, loanReserve.AssetId)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}

	seized, settle, err := obligation.Liquidate(byCollateral, amount, collateralIndex, loanIndex, collateralReserve, loanReserve, friend)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}
	totalRepay, fee, err := loanReserve.Liquidity.FlashLoanBorrowOut(settle.Amount)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}
	if err := loanReserve.Liquidity.Repay(settle); err != nil {
		return 0, core.RepaySettle{}, err
	}

	seizeEffects := []Effect{
		{Kind: EffectTransferOut, ReserveId: collateralReserve.Id, AssetId: collateralReserve.AssetId, Amount: seized},
	}
	if err := callback(ctx, seizeEffects); err != nil {
		return 0, core.RepaySettle{}, err
	}

	after, err := balances.TokenBalance(ctx, loanReserve.AssetId)
	if err != nil {
		return 0, core.RepaySettle{}, err
	}
	if after < before || after-before < totalRepay {
		return 0, core.RepaySettle{}, core.ErrFlashLoanNotSettled
	}

	if err := loanReserve.Liquidity.FlashLoanRepay(settle.Amount, fee); err != nil {
		return 0, core.RepaySettle{}, err
	}
	obligation.MarkStale()
	obligation.UpdateFlag(false, core.ObligationFlagsInFlashLoan)

	if err := e.persistReserves(ctx, cache); err != nil {
		return 0, core.RepaySettle{}, err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return 0, core.RepaySettle{}, err
	}
	settled = true

	effects := append(seizeEffects,
		Effect{Kind: EffectTransferIn, ReserveId: loanReserve.Id, AssetId: loanReserve.AssetId, Amount: totalRepay})
	if err := e.audit(ctx, liquidator, obligation.Id, ActionFlashLiquidate, loanReserve.Id, settle.Amount, effects); err != nil {
		return 0, core.RepaySettle{}, err
	}
	return seized, settle, nil
}
