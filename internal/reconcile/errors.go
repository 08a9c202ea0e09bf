package reconcile

import (
	"errors"
	"fmt"

	"github.com/iurnickita/paybot/internal/ledger"
)

var (
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrDuplicateInFlight = errors.New("request already pending")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrRequestNotFound   = errors.New("request not found")
	ErrAlreadyProcessed  = errors.New("request already processed")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrUnknownKind       = errors.New("unknown request kind")
	ErrNoActivePlan      = errors.New("no active plan")
	ErrInvalidPayload    = errors.New("invalid request details")
	ErrMalformedID       = errors.New("malformed request id")
	ErrStaleUpgrade      = errors.New("upgrade no longer applies")
)

// Denial is a business-rule refusal with a reason fit for the user.
type Denial struct {
	Err    error
	Reason string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%v: %s", d.Err, d.Reason)
}

func (d *Denial) Unwrap() error { return d.Err }

func deny(err error, format string, args ...any) *Denial {
	return &Denial{Err: err, Reason: fmt.Sprintf(format, args...)}
}

// Reason extracts the user-facing text of err. Persistence and unknown failures get a
// generic text since their details are not meant for the user.
func Reason(err error) string {
	var d *Denial
	if errors.As(err, &d) {
		return d.Reason
	}
	switch {
	case errors.Is(err, ledger.ErrAccountBanned):
		return "Your account has been suspended by admin."
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "Insufficient balance."
	case errors.Is(err, ledger.ErrAccountNotFound):
		return "Account not found."
	}
	return "Something went wrong, please try again later."
}
