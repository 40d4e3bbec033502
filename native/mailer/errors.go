package mailer

import "errors"

// Error is a protocol failure with a stable numeric code. The code space is
// closed; host-level conditions (missing signer, malformed instruction data)
// surface as plain sentinels without a code.
type Error struct {
	code uint32
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Code returns the stable numeric code of the failure.
func (e *Error) Code() uint32 { return e.code }

var (
	ErrOnlyOwner             = &Error{1, "mailer: only owner"}
	ErrNoClaimableAmount     = &Error{2, "mailer: no claimable amount"}
	ErrClaimPeriodExpired    = &Error{3, "mailer: claim period expired"}
	ErrClaimPeriodNotExpired = &Error{4, "mailer: claim period not expired"} // reserved
	ErrInvalidRecipient      = &Error{5, "mailer: invalid recipient"}
	ErrNoDelegationToReject  = &Error{6, "mailer: no delegation to reject"}
	ErrInvalidDelegator      = &Error{7, "mailer: invalid delegator"} // reserved
	ErrAlreadyInitialized    = &Error{8, "mailer: already initialized"}
	ErrNotInitialized        = &Error{9, "mailer: not initialized"}
	ErrInvalidPDA            = &Error{10, "mailer: invalid record address"}
	ErrInvalidAccountOwner   = &Error{11, "mailer: invalid account owner"}
)

// Host-level sentinels. These mirror conditions the host runtime reports with
// its own native codes.
var (
	ErrMissingRequiredSignature = errors.New("mailer: missing required signature")
	ErrInvalidInstructionData   = errors.New("mailer: invalid instruction data")
	ErrUnknownInstruction       = errors.New("mailer: unknown instruction")
	ErrBadAccountList           = errors.New("mailer: unexpected account list")
	ErrNilState                 = errors.New("mailer: state not configured")
	ErrNilTokenLedger           = errors.New("mailer: token ledger not configured")
)
