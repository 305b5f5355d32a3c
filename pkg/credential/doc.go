// Package credential implements the accessory's credential lifecycle.
//
// A Store owns three collections: confirmed credentials, pending
// invitations, and their 32-byte secrets (kept apart from the metadata so
// the roster can be listed without exposing key material). Four transitions
// move an identifier through its lifecycle:
//
//	Setup    Unknown -> Confirmed(owner)   only while no owner exists
//	Invite   Unknown -> Pending            owner or admin caller
//	Confirm  Pending -> Confirmed          signed with the pending secret
//	Revoke   Pending|Confirmed -> Unknown  owner or admin caller
//
// Every transition is applied to the persisted snapshot first; the in-memory
// view only changes after the snapshot write succeeded.
package credential
