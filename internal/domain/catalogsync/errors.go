package catalogsync

import "errors"

// Run lifecycle errors
var (
	ErrSyncRunNotFound          = errors.New("catalogsync: sync run not found")
	ErrSyncRunFinalized         = errors.New("catalogsync: sync run already finalized")
	ErrSyncRunInvalidTransition = errors.New("catalogsync: invalid sync run status transition")
	ErrSyncRunInvalidStatus     = errors.New("catalogsync: finish status must be terminal")
	ErrSyncRunInvalidTenant     = errors.New("catalogsync: tenant id cannot be empty")
	ErrSyncRunInvalidDirection  = errors.New("catalogsync: invalid sync direction")
	ErrSyncRunInvalidEntityType = errors.New("catalogsync: entity type cannot be empty")
	ErrSyncInProgress           = errors.New("catalogsync: another sync run is in progress")
)

// Fatal preconditions; a run hitting one of these writes no products
var (
	ErrFetchFailed         = errors.New("catalogsync: remote catalog fetch failed")
	ErrDependencyMapEmpty  = errors.New("catalogsync: required dependency map is empty")
	ErrLocalIndexFailed    = errors.New("catalogsync: loading local products failed")
	ErrDependencyTxAborted = errors.New("catalogsync: dependency transaction aborted")
)

// Per-product errors
var (
	ErrMissingDependency = errors.New("catalogsync: product references an unmapped dependency")
	ErrMasterUnit        = errors.New("catalogsync: master unit assignment failed")
	ErrUnmappedWarehouse = errors.New("catalogsync: row references an unmapped warehouse")
)

// Remote adapter errors
var (
	ErrRemoteUnavailable   = errors.New("catalogsync: remote catalog unavailable")
	ErrRemoteRequestFailed = errors.New("catalogsync: remote catalog request failed")
	ErrRemoteRateLimited   = errors.New("catalogsync: remote catalog rate limit exceeded")
	ErrRemoteItemNotFound  = errors.New("catalogsync: remote catalog has no such item")
)
