// Package catalogsync holds the domain model of catalog reconciliation:
// the remote catalog port and its wire types, the canonical product form,
// classifications, dependency maps, run statistics and the SyncRun audit
// aggregate.
//
// A reconciliation run moves through fetch, map, resolve, classify, apply
// and record. Only the SyncRun outlives a run; everything else here is
// scoped to one run and discarded at its end.
package catalogsync
