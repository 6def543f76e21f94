package model

import "errors"

// Sentinel errors shared by the engine packages. Wrap them with eris and
// test with errors.Is.
var (
	// ErrValidation marks caller input that was rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing need, inventory or conflict record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidGeometry marks a record without usable km or coordinates.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrUnknownAssetType marks an asset type outside the known set.
	ErrUnknownAssetType = errors.New("unknown asset type")

	// ErrNotPending marks a reconciliation attempted on a need that is not
	// awaiting a decision.
	ErrNotPending = errors.New("need is not pending reconciliation")

	// ErrConfiguration marks a failure to load batch configuration
	// (tolerances, repositories) that aborts the whole batch.
	ErrConfiguration = errors.New("configuration error")
)
