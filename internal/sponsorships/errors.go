package sponsorships

import "errors"

// Error kinds. Every error returned by this package that rejects a request
// unwraps to exactly one of these.
var (
	ErrValidation     = errors.New("validation failure")
	ErrIneligible     = errors.New("eligibility failure")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not found")
	ErrCollaborator   = errors.New("collaborator failure")
	ErrReconciliation = errors.New("sponsorship requires reconciliation")
)

// Error is a rejected request with a message safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func rejection(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrInvalidToken         = rejection(ErrValidation, "Failed to parse sponsorship token.")
	ErrNoOutstandingOffer   = rejection(ErrValidation, "Cannot find an outstanding sponsorship offer for this organization.")
	ErrMissingSponsorType   = rejection(ErrValidation, "Cannot set up sponsorship without a known sponsorship type.")
	ErrInvalidOffer         = rejection(ErrValidation, "Sponsorship offer requires a sponsoring organization, a confirmed member and a recipient email.")
	ErrWrongSponsor         = rejection(ErrValidation, "Sponsorship does not belong to the sponsoring organization.")
	ErrMissingSponsoredOrg  = rejection(ErrValidation, "Cannot redeem a sponsorship offer without an organization to sponsor.")
	ErrCannotSponsor        = rejection(ErrIneligible, "Specified Organization cannot sponsor other organizations.")
	ErrUnconfirmedSponsor   = rejection(ErrIneligible, "Only confirmed users can sponsor other organizations.")
	ErrCannotBeSponsored    = rejection(ErrIneligible, "Can only redeem sponsorship offer on families organizations.")
	ErrSponsoredOrgDisabled = rejection(ErrIneligible, "Cannot redeem sponsorship offer on a disabled organization.")
	ErrAlreadySponsoring    = rejection(ErrConflict, "Can only sponsor one organization per Organization User.")
	ErrAlreadySponsored     = rejection(ErrConflict, "Cannot redeem a sponsorship offer for an organization that is already sponsored. Revoke existing sponsorship first.")
	ErrAlreadyRedeemed      = rejection(ErrConflict, "Sponsorship offer has already been redeemed.")
	ErrNotSponsoring        = rejection(ErrNotFound, "You are not currently sponsoring an organization.")
	ErrSponsorshipNotFound  = rejection(ErrNotFound, "The requested organization is not currently being sponsored.")
)
