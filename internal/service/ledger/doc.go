// Package ledger implements the append-only activity ledger.
//
// Entries are never updated or deleted. The ledger is the audit trail from
// which campaign counters can be reconciled; the repository exposes no
// mutation other than Append.
package ledger
