package listings

import "errors"

var (
	// ErrListingNotFound carries the contract's exact text.
	ErrListingNotFound = errors.New("listing ID not found")

	ErrPositiveCollateral = errors.New("Must provide positive collateral")
	ErrPositiveDuration   = errors.New("duration must be positive")
	ErrNoAssets           = errors.New("must reference at least one asset")
	ErrCollateralMismatch = errors.New("collateral amount or symbol mismatch")
	ErrInvalidState       = errors.New("action not allowed in current listing state")
	ErrNotYetLiquidatable = errors.New("listing is not yet liquidatable")
	ErrNotInitialized     = errors.New("contract not initialized")

	// ErrCounterMismatch signals a broken core invariant: the global listing
	// counter must equal the number of rows in the listings table after
	// every mutating transition.
	ErrCounterMismatch = errors.New("listing counter out of sync with listings table")
)
