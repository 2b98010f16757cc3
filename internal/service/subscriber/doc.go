// Package subscriber implements the subscriber lifecycle: subscription,
// verification, unsubscribe and administrative status changes.
//
// A subscriber's counters and token are initialized by Subscribe itself;
// there are no implicit post-save hooks. Subscribers are never hard-deleted
// except through Purge.
package subscriber
