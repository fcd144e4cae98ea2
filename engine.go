package lending

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/soda-protocol/soda-lending/core"
)

type (
	// SlotSource reports the current slot the engine stamps refreshes with.
	SlotSource interface {
		CurrentSlot() uint64
	}

	// Engine drives every market operation in the same order: refresh the
	// reserves, refresh the obligation, mutate, validate, mark stale, and
	// hand the token movements back to the caller as effects.
	Engine struct {
		clk    clock.Clock
		log    core.Log
		slots  SlotSource
		oracle core.PriceOracle
		stores Stores
	}

	EngineOption func(e *Engine)
)

func WithClock(clk clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clk = clk
	}
}

func WithLog(log core.Log) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

func NewEngine(stores Stores, slots SlotSource, oracle core.PriceOracle, opts ...EngineOption) *Engine {
	e := &Engine{
		clk:    clock.New(),
		log:    core.NopLog{},
		slots:  slots,
		oracle: oracle,
		stores: stores,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateReserve opens a reserve under a manager the caller owns.
func (e *Engine) CreateReserve(ctx context.Context, owner string, managerId uuid.UUID, assetId string, tokenDecimal uint8,
	rateModel core.RateModel, collateralConfig core.CollateralConfig, liquidityConfig core.LiquidityConfig) (*core.Reserve, error) {
	manager, err := e.stores.Managers.GetManagerById(ctx, managerId)
	if err != nil {
		return nil, err
	}
	if manager.Owner != owner {
		return nil, core.ErrManagerNotMatched
	}

	if err := rateModel.Validate(); err != nil {
		return nil, err
	}
	if err := collateralConfig.Validate(); err != nil {
		return nil, err
	}
	if err := liquidityConfig.Validate(); err != nil {
		return nil, err
	}

	reserve := core.NewReserve(e.clk, managerId, assetId, tokenDecimal, e.slots.CurrentSlot(), rateModel, collateralConfig, liquidityConfig)
	if err := e.stores.Reserves.CreateReserve(ctx, reserve); err != nil {
		return nil, err
	}
	return reserve, nil
}

// OperateReserve applies a governance change to a reserve the caller's
// manager owns.
func (e *Engine) OperateReserve(ctx context.Context, owner string, reserveId uuid.UUID, change core.ReserveChange) error {
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return err
	}
	manager, err := e.stores.Managers.GetManagerById(ctx, reserve.ManagerId)
	if err != nil {
		return err
	}
	if manager.Owner != owner {
		return core.ErrManagerNotMatched
	}

	if err := reserve.Operate(change); err != nil {
		return err
	}
	return e.stores.Reserves.UpdateReserve(ctx, reserve)
}

// OperateObligation overrides per-entry parameters of an obligation, manager
// owner only.
func (e *Engine) OperateObligation(ctx context.Context, owner string, obligationId uuid.UUID, change core.ObligationChange) error {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return err
	}
	manager, err := e.stores.Managers.GetManagerById(ctx, obligation.ManagerId)
	if err != nil {
		return err
	}
	if manager.Owner != owner {
		return core.ErrManagerNotMatched
	}

	if err := obligation.Operate(change); err != nil {
		return err
	}
	return e.stores.Obligations.UpdateObligation(ctx, obligation)
}

// RefreshReserve accrues interest and re-prices one reserve.
func (e *Engine) RefreshReserve(ctx context.Context, reserveId uuid.UUID) (*core.Reserve, error) {
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return nil, err
	}
	if err := e.refreshReserve(ctx, reserve); err != nil {
		return nil, err
	}
	if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
		return nil, err
	}
	return reserve, nil
}

func (e *Engine) refreshReserve(ctx context.Context, reserve *core.Reserve) error {
	slot := e.slots.CurrentSlot()

	quote, err := e.oracle.GetPriceQuote(ctx, reserve.AssetId)
	if err != nil {
		return errors.Wrapf(err, "fetch price for asset %s", reserve.AssetId)
	}
	if quote.IsStale(slot) {
		return core.ErrInvalidPrice
	}

	borrowRate, err := reserve.CurrentBorrowRate()
	if err != nil {
		return err
	}
	if err := reserve.AccrueInterest(borrowRate, slot); err != nil {
		return err
	}
	if err := reserve.Operate(core.PriceUpdate{Price: quote.Price}); err != nil {
		return err
	}
	reserve.LastUpdate.Update(slot)

	e.log.Debug().
		Str("reserve", reserve.Id.String()).
		Uint64("slot", slot).
		Str("borrowRate", borrowRate.String()).
		Str("price", quote.Price.String()).
		Msg("reserve refreshed")
	return nil
}

// loadFriend resolves the paired obligation, nil when unbound.
func (e *Engine) loadFriend(ctx context.Context, obligation *core.Obligation) (*core.Obligation, error) {
	if obligation.Friend == uuid.Nil {
		return nil, nil
	}
	friend, err := e.stores.Obligations.GetObligationById(ctx, obligation.Friend)
	if err != nil {
		return nil, err
	}
	if friend.Friend != obligation.Id {
		return nil, core.ErrFriendNotMatch
	}
	return friend, nil
}

// obligationReserves loads one reserve entry per reference, sharing one
// instance per reserve so interest accrues once.
func (e *Engine) obligationReserves(ctx context.Context, obligation *core.Obligation, cache map[uuid.UUID]*core.Reserve) ([]*core.Reserve, error) {
	load := func(key uuid.UUID) (*core.Reserve, error) {
		if reserve, ok := cache[key]; ok {
			return reserve, nil
		}
		reserve, err := e.stores.Reserves.GetReserveById(ctx, key)
		if err != nil {
			return nil, err
		}
		if reserve.ManagerId != obligation.ManagerId {
			return nil, core.ErrManagerNotMatched
		}
		if err := e.refreshReserve(ctx, reserve); err != nil {
			return nil, err
		}
		cache[key] = reserve
		return reserve, nil
	}

	reserves := make([]*core.Reserve, 0, len(obligation.Collaterals)+len(obligation.Loans))
	for _, collateral := range obligation.Collaterals {
		reserve, err := load(collateral.Reserve)
		if err != nil {
			return nil, err
		}
		reserves = append(reserves, reserve)
	}
	for _, loan := range obligation.Loans {
		reserve, err := load(loan.Reserve)
		if err != nil {
			return nil, err
		}
		reserves = append(reserves, reserve)
	}
	return reserves, nil
}

// refreshObligation refreshes every referenced reserve and the cached
// aggregates of the obligation and its friend. The shared reserve cache is
// returned so the caller can persist what changed.
func (e *Engine) refreshObligation(ctx context.Context, obligation, friend *core.Obligation) (map[uuid.UUID]*core.Reserve, error) {
	slot := e.slots.CurrentSlot()
	cache := make(map[uuid.UUID]*core.Reserve)

	reserves, err := e.obligationReserves(ctx, obligation, cache)
	if err != nil {
		return nil, err
	}
	if err := obligation.Refresh(reserves); err != nil {
		return nil, err
	}
	obligation.LastUpdate.Update(slot)

	if friend != nil {
		friendReserves, err := e.obligationReserves(ctx, friend, cache)
		if err != nil {
			return nil, err
		}
		if err := friend.Refresh(friendReserves); err != nil {
			return nil, err
		}
		friend.LastUpdate.Update(slot)
	}
	return cache, nil
}

func (e *Engine) persistReserves(ctx context.Context, cache map[uuid.UUID]*core.Reserve) error {
	for _, reserve := range cache {
		if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) audit(ctx context.Context, owner string, obligationId uuid.UUID, action ActionType, reserveId uuid.UUID, amount uint64, effects []Effect) error {
	operation := NewOperation(e.clk, owner, obligationId, action, OperationDetail{
		Action:    action,
		ReserveId: reserveId,
		Amount:    amount,
		Effects:   effects,
	})
	return e.stores.Operations.CreateOperation(ctx, operation)
}

func ensureNotInFlashLoan(obligation *core.Obligation) error {
	if obligation.GetFlag(core.ObligationFlagsInFlashLoan) {
		return core.ErrObligationInFlashLoan
	}
	return nil
}

// DepositLiquidity exchanges tokens for collateral tokens of the reserve.
func (e *Engine) DepositLiquidity(ctx context.Context, owner string, reserveId uuid.UUID, amount uint64) (uint64, []Effect, error) {
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return 0, nil, err
	}
	if err := e.refreshReserve(ctx, reserve); err != nil {
		return 0, nil, err
	}

	minted, err := reserve.Deposit(amount)
	if err != nil {
		return 0, nil, err
	}
	if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
		return 0, nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferIn, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: amount},
		{Kind: EffectMintCollateral, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: minted},
	}
	if err := e.audit(ctx, owner, uuid.Nil, ActionDepositLiquidity, reserve.Id, amount, effects); err != nil {
		return 0, nil, err
	}
	return minted, effects, nil
}

// WithdrawLiquidity burns collateral tokens back into reserve tokens.
func (e *Engine) WithdrawLiquidity(ctx context.Context, owner string, reserveId uuid.UUID, burnAmount uint64) (uint64, []Effect, error) {
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return 0, nil, err
	}
	if err := e.refreshReserve(ctx, reserve); err != nil {
		return 0, nil, err
	}

	amount, err := reserve.Withdraw(burnAmount)
	if err != nil {
		return 0, nil, err
	}
	if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
		return 0, nil, err
	}

	effects := []Effect{
		{Kind: EffectBurnCollateral, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: burnAmount},
		{Kind: EffectTransferOut, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: amount},
	}
	if err := e.audit(ctx, owner, uuid.Nil, ActionWithdrawLiquidity, reserve.Id, burnAmount, effects); err != nil {
		return 0, nil, err
	}
	return amount, effects, nil
}

// PledgeCollateral locks collateral tokens under the owner's obligation,
// opening it on first use.
func (e *Engine) PledgeCollateral(ctx context.Context, owner string, reserveId uuid.UUID, balance, amount uint64) (uint64, []Effect, error) {
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return 0, nil, err
	}
	if err := e.refreshReserve(ctx, reserve); err != nil {
		return 0, nil, err
	}

	obligation, err := FindOrCreateObligation(ctx, e.clk, e.stores, reserve.ManagerId, owner, e.slots.CurrentSlot())
	if err != nil {
		return 0, nil, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return 0, nil, err
	}

	var pledged uint64
	if index, err := obligation.FindCollateral(reserve.Id); err == nil {
		pledged, err = obligation.Pledge(balance, amount, index, reserve, false)
		if err != nil {
			return 0, nil, err
		}
	} else {
		pledged, err = obligation.NewPledge(balance, amount, reserve.Id, reserve, false)
		if err != nil {
			return 0, nil, err
		}
	}
	obligation.MarkStale()

	if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
		return 0, nil, err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return 0, nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferIn, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: pledged},
	}
	if err := e.audit(ctx, owner, obligation.Id, ActionPledgeCollateral, reserve.Id, pledged, effects); err != nil {
		return 0, nil, err
	}
	return pledged, effects, nil
}

// RedeemCollateral releases pledged collateral, health checked against the
// freshly refreshed position.
func (e *Engine) RedeemCollateral(ctx context.Context, obligationId, reserveId uuid.UUID, amount uint64) (uint64, []Effect, error) {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return 0, nil, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return 0, nil, err
	}
	friend, err := e.loadFriend(ctx, obligation)
	if err != nil {
		return 0, nil, err
	}

	cache, err := e.refreshObligation(ctx, obligation, friend)
	if err != nil {
		return 0, nil, err
	}
	reserve, ok := cache[reserveId]
	if !ok {
		return 0, nil, core.ErrCollateralNotFound
	}

	index, err := obligation.FindCollateral(reserveId)
	if err != nil {
		return 0, nil, err
	}
	redeemed, err := obligation.Redeem(amount, index, reserve, friend, true, true)
	if err != nil {
		return 0, nil, err
	}
	obligation.MarkStale()

	if err := e.persistReserves(ctx, cache); err != nil {
		return 0, nil, err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return 0, nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferOut, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: redeemed},
	}
	if err := e.audit(ctx, obligation.Owner, obligation.Id, ActionRedeemCollateral, reserve.Id, redeemed, effects); err != nil {
		return 0, nil, err
	}
	return redeemed, effects, nil
}

// RedeemCollateralWithoutLoan skips the health check when neither side of
// the pairing has any debt.
func (e *Engine) RedeemCollateralWithoutLoan(ctx context.Context, obligationId, reserveId uuid.UUID, amount uint64) (uint64, []Effect, error) {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return 0, nil, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return 0, nil, err
	}
	friend, err := e.loadFriend(ctx, obligation)
	if err != nil {
		return 0, nil, err
	}
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return 0, nil, err
	}

	index, err := obligation.FindCollateral(reserveId)
	if err != nil {
		return 0, nil, err
	}
	redeemed, err := obligation.RedeemWithoutLoan(amount, index, friend)
	if err != nil {
		return 0, nil, err
	}
	obligation.MarkStale()

	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return 0, nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferOut, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: redeemed},
	}
	if err := e.audit(ctx, obligation.Owner, obligation.Id, ActionRedeemCollateral, reserve.Id, redeemed, effects); err != nil {
		return 0, nil, err
	}
	return redeemed, effects, nil
}

// ReplaceCollateral swaps one collateral for another without leaving the
// position unhealthy in between.
func (e *Engine) ReplaceCollateral(ctx context.Context, obligationId, outReserveId, inReserveId uuid.UUID, balance, inAmount uint64) (uint64, uint64, []Effect, error) {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return 0, 0, nil, err
	}
	friend, err := e.loadFriend(ctx, obligation)
	if err != nil {
		return 0, 0, nil, err
	}

	cache, err := e.refreshObligation(ctx, obligation, friend)
	if err != nil {
		return 0, 0, nil, err
	}
	outReserve, ok := cache[outReserveId]
	if !ok {
		return 0, 0, nil, core.ErrCollateralNotFound
	}
	inReserve, err := e.stores.Reserves.GetReserveById(ctx, inReserveId)
	if err != nil {
		return 0, 0, nil, err
	}
	if inReserve.ManagerId != obligation.ManagerId {
		return 0, 0, nil, core.ErrManagerNotMatched
	}
	if err := e.refreshReserve(ctx, inReserve); err != nil {
		return 0, 0, nil, err
	}

	outIndex, err := obligation.FindCollateral(outReserveId)
	if err != nil {
		return 0, 0, nil, err
	}
	in, out, err := obligation.ReplaceCollateral(balance, inAmount, outIndex, inReserve.Id, outReserve, inReserve, friend)
	if err != nil {
		return 0, 0, nil, err
	}
	obligation.MarkStale()

	if err := e.persistReserves(ctx, cache); err != nil {
		return 0, 0, nil, err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return 0, 0, nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferIn, ReserveId: inReserve.Id, AssetId: inReserve.AssetId, Amount: in},
		{Kind: EffectTransferOut, ReserveId: outReserve.Id, AssetId: outReserve.AssetId, Amount: out},
	}
	if err := e.audit(ctx, obligation.Owner, obligation.Id, ActionReplaceCollateral, inReserve.Id, in, effects); err != nil {
		return 0, 0, nil, err
	}
	return in, out, effects, nil
}

// Borrow draws liquidity against the refreshed position.
func (e *Engine) Borrow(ctx context.Context, obligationId, reserveId uuid.UUID, amount uint64) (uint64, []Effect, error) {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return 0, nil, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return 0, nil, err
	}
	friend, err := e.loadFriend(ctx, obligation)
	if err != nil {
		return 0, nil, err
	}

	cache, err := e.refreshObligation(ctx, obligation, friend)
	if err != nil {
		return 0, nil, err
	}
	reserve, ok := cache[reserveId]
	if !ok {
		reserve, err = e.stores.Reserves.GetReserveById(ctx, reserveId)
		if err != nil {
			return 0, nil, err
		}
		if reserve.ManagerId != obligation.ManagerId {
			return 0, nil, core.ErrManagerNotMatched
		}
		if err := e.refreshReserve(ctx, reserve); err != nil {
			return 0, nil, err
		}
		cache[reserve.Id] = reserve
	}

	var borrowed uint64
	if index, err := obligation.FindLoan(reserveId); err == nil {
		borrowed, err = obligation.BorrowIn(amount, index, reserve, friend)
		if err != nil {
			return 0, nil, err
		}
	} else {
		borrowed, err = obligation.NewBorrowIn(amount, reserve.Id, reserve, friend)
		if err != nil {
			return 0, nil, err
		}
	}
	if err := reserve.Liquidity.BorrowOut(borrowed); err != nil {
		return 0, nil, err
	}
	obligation.MarkStale()

	if err := e.persistReserves(ctx, cache); err != nil {
		return 0, nil, err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return 0, nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferOut, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: borrowed},
	}
	if err := e.audit(ctx, obligation.Owner, obligation.Id, ActionBorrow, reserve.Id, borrowed, effects); err != nil {
		return 0, nil, err
	}
	return borrowed, effects, nil
}

// Repay settles a loan with min(requested, debt, balance).
func (e *Engine) Repay(ctx context.Context, obligationId, reserveId uuid.UUID, amount, balance uint64) (core.RepaySettle, []Effect, error) {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return core.RepaySettle{}, nil, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return core.RepaySettle{}, nil, err
	}
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return core.RepaySettle{}, nil, err
	}
	if err := e.refreshReserve(ctx, reserve); err != nil {
		return core.RepaySettle{}, nil, err
	}

	index, err := obligation.FindLoan(reserveId)
	if err != nil {
		return core.RepaySettle{}, nil, err
	}
	if err := obligation.Loans[index].AccrueInterest(reserve); err != nil {
		return core.RepaySettle{}, nil, err
	}
	settle, err := obligation.Repay(amount, balance, index, reserve, false)
	if err != nil {
		return core.RepaySettle{}, nil, err
	}
	if err := reserve.Liquidity.Repay(settle); err != nil {
		return core.RepaySettle{}, nil, err
	}
	obligation.MarkStale()

	if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
		return core.RepaySettle{}, nil, err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return core.RepaySettle{}, nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferIn, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: settle.Amount},
	}
	if err := e.audit(ctx, obligation.Owner, obligation.Id, ActionRepay, reserve.Id, settle.Amount, effects); err != nil {
		return core.RepaySettle{}, nil, err
	}
	return settle, effects, nil
}

// Liquidate repays part of an unhealthy position's loan and seizes
// collateral at the clamped seize rate.
func (e *Engine) Liquidate(ctx context.Context, liquidator string, obligationId, collateralReserveId, loanReserveId uuid.UUID,
	amount uint64, byCollateral bool) (uint64, core.RepaySettle, []Effect, error) {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	if err := ensureNotInFlashLoan(obligation); err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	friend, err := e.loadFriend(ctx, obligation)
	if err != nil {
		return 0, core.RepaySettle{}, nil, err
	}

	cache, err := e.refreshObligation(ctx, obligation, friend)
	if err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	collateralReserve, ok := cache[collateralReserveId]
	if !ok {
		return 0, core.RepaySettle{}, nil, core.ErrCollateralNotFound
	}
	loanReserve, ok := cache[loanReserveId]
	if !ok {
		return 0, core.RepaySettle{}, nil, core.ErrLoanNotFound
	}

	collateralIndex, err := obligation.FindCollateral(collateralReserveId)
	if err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	loanIndex, err := obligation.FindLoan(loanReserveId)
	if err != nil {
		return 0, core.RepaySettle{}, nil, err
	}

	seized, settle, err := obligation.Liquidate(byCollateral, amount, collateralIndex, loanIndex, collateralReserve, loanReserve, friend)
	if err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	if err := loanReserve.Liquidity.Repay(settle); err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	obligation.MarkStale()

	if err := e.persistReserves(ctx, cache); err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return 0, core.RepaySettle{}, nil, err
	}

	e.log.Info().
		Str("obligation", obligation.Id.String()).
		Str("liquidator", liquidator).
		Uint64("seized", seized).
		Uint64("repaid", settle.Amount).
		Msg("liquidation settled")

	effects := []Effect{
		{Kind: EffectTransferIn, ReserveId: loanReserve.Id, AssetId: loanReserve.AssetId, Amount: settle.Amount},
		{Kind: EffectTransferOut, ReserveId: collateralReserve.Id, AssetId: collateralReserve.AssetId, Amount: seized},
	}
	if err := e.audit(ctx, liquidator, obligation.Id, ActionLiquidate, loanReserve.Id, settle.Amount, effects); err != nil {
		return 0, core.RepaySettle{}, nil, err
	}
	return seized, settle, effects, nil
}

// BindFriend pairs two obligations of the same market, both ways.
func (e *Engine) BindFriend(ctx context.Context, obligationId, friendId uuid.UUID) error {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return err
	}
	friend, err := e.stores.Obligations.GetObligationById(ctx, friendId)
	if err != nil {
		return err
	}
	if obligation.ManagerId != friend.ManagerId {
		return core.ErrManagerNotMatched
	}

	if err := obligation.BindFriend(friend.Id); err != nil {
		return err
	}
	if err := friend.BindFriend(obligation.Id); err != nil {
		return err
	}

	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, friend); err != nil {
		return err
	}
	return e.audit(ctx, obligation.Owner, obligation.Id, ActionBindFriend, uuid.Nil, 0, nil)
}

// UnbindFriend drops a pairing once both sides stand on their own.
func (e *Engine) UnbindFriend(ctx context.Context, obligationId uuid.UUID) error {
	obligation, err := e.stores.Obligations.GetObligationById(ctx, obligationId)
	if err != nil {
		return err
	}
	friend, err := e.loadFriend(ctx, obligation)
	if err != nil {
		return err
	}
	if friend == nil {
		return core.ErrNotBound
	}

	cache, err := e.refreshObligation(ctx, obligation, friend)
	if err != nil {
		return err
	}
	if err := obligation.UnbindFriend(); err != nil {
		return err
	}
	if err := friend.UnbindFriend(); err != nil {
		return err
	}

	if err := e.persistReserves(ctx, cache); err != nil {
		return err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, obligation); err != nil {
		return err
	}
	if err := e.stores.Obligations.UpdateObligation(ctx, friend); err != nil {
		return err
	}
	return e.audit(ctx, obligation.Owner, obligation.Id, ActionUnbindFriend, uuid.Nil, 0, nil)
}

// ReduceInsurance pays accumulated protocol revenue out to the manager
// owner.
func (e *Engine) ReduceInsurance(ctx context.Context, owner string, reserveId uuid.UUID, amount uint64) ([]Effect, error) {
	reserve, err := e.stores.Reserves.GetReserveById(ctx, reserveId)
	if err != nil {
		return nil, err
	}
	manager, err := e.stores.Managers.GetManagerById(ctx, reserve.ManagerId)
	if err != nil {
		return nil, err
	}
	if manager.Owner != owner {
		return nil, core.ErrManagerNotMatched
	}

	if err := e.refreshReserve(ctx, reserve); err != nil {
		return nil, err
	}
	if err := reserve.Liquidity.ReduceInsurance(amount); err != nil {
		return nil, err
	}
	if err := e.stores.Reserves.UpdateReserve(ctx, reserve); err != nil {
		return nil, err
	}

	effects := []Effect{
		{Kind: EffectTransferOut, ReserveId: reserve.Id, AssetId: reserve.AssetId, Amount: amount},
	}
	if err := e.audit(ctx, owner, uuid.Nil, ActionReduceInsurance, reserve.Id, amount, effects); err != nil {
		return nil, err
	}
	return effects, nil
}
