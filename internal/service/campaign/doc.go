// Package campaign implements the campaign lifecycle and the dispatcher
// that drives a send.
//
// The service layer owns the status state machine and every campaign
// counter. It depends on repository interfaces defined in this package and
// on small collaborator interfaces for audience resolution, per-recipient
// delivery and archiving; it should never import from api/.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
