// Package delivery renders one campaign email for one subscriber, hands it
// to the mail transport and records the send in the activity ledger.
//
// A Worker never mutates campaign state. The dispatcher counts its
// successful outcomes and writes the total once the batch finishes.
package delivery
