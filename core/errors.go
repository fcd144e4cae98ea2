package core

import (
	"github.com/pkg/errors"
)

// Arithmetic errors.
var (
	ErrMathOverflow = errors.New("math overflow")
	ErrUnderflow    = errors.New("underflow")
	ErrDivideByZero = errors.New("divide by zero")
	ErrOverflow     = errors.New("amount overflow")
)

// Staleness errors.
var (
	ErrReserveStale    = errors.New("reserve is stale")
	ErrObligationStale = errors.New("obligation is stale")
	ErrInvalidSlot     = errors.New("slot is behind last update")
)

// Reserve errors.
var (
	ErrReserveDisabled          = errors.New("reserve liquidity is disabled")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
	ErrDepositLimitExceeded     = errors.New("deposit limit exceeded")
	ErrCollateralInsufficient   = errors.New("collateral supply is insufficient")
	ErrInsuranceInsufficient    = errors.New("insurance is insufficient")
	ErrNegativeInterestRate     = errors.New("negative interest rate")
	ErrFlashLoanNotSettled      = errors.New("flash loan not settled")
	ErrInvalidFlashLoanCallback = errors.New("invalid flash loan callback")
)

// Obligation errors.
var (
	ErrObligationReservesFull = errors.New("obligation reserves are full")
	ErrObligationNotHealthy   = errors.New("obligation is not healthy")
	ErrObligationHasDebt      = errors.New("obligation has outstanding loans")
	ErrObligationInFlashLoan  = errors.New("obligation is in a flash loan")
	ErrBorrowTooSmall         = errors.New("borrow amount is too small")
	ErrRepayTooMuch           = errors.New("repay amount exceeds debt")
	ErrReservesNotMatched     = errors.New("reserves do not match obligation")
	ErrCollateralNotFound     = errors.New("obligation collateral not found")
	ErrCollateralExists       = errors.New("obligation collateral already exists")
	ErrLoanNotFound           = errors.New("obligation loan not found")
)

// Liquidation errors.
var (
	ErrLiquidationNotAvailable  = errors.New("obligation is not liquidatable")
	ErrLiquidationForbidden     = errors.New("liquidation is forbidden")
	ErrLiquidationRepayTooSmall = errors.New("liquidation repay amount is too small")
	ErrLiquidationRepayTooMuch  = errors.New("liquidation repay amount is too much")
	ErrLiquidationSeizeTooSmall = errors.New("liquidation seize amount is too small")
)

// Friend pairing errors.
var (
	ErrAlreadyBound   = errors.New("obligation already has a friend")
	ErrNotBound       = errors.New("obligation has no friend")
	ErrFriendNotMatch = errors.New("friend obligation does not match")
	ErrSelfPairing    = errors.New("obligation cannot pair with itself")
)

// Config errors.
var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrInvalidRateModel  = errors.New("invalid rate model")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidIndex      = errors.New("invalid index")
	ErrManagerNotMatched = errors.New("manager does not match")
)
