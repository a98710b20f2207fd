package quote

import (
	"time"

	"github.com/noah-isme/engineroom-pricing/internal/common"
)

// Status texts shown next to the form.
const (
	MsgCalculated     = "Calculation completed successfully!"
	MsgExported       = "CSV downloaded successfully!"
	MsgSubmitting     = "Submitting quote via Make automation..."
	MsgSubmitted      = "Quote submitted successfully!"
	MsgNoResult       = "Please calculate costs first"
	MsgSubmitFailed   = "Error submitting via Make: "
	MsgNotConfigured  = "Quote submission is not configured"
	MsgInProgress     = "A submission for this quote is already in progress"
	MsgInvalidPayload = "Invalid quote request"
)

// Status types.
const (
	StatusSuccess = common.StatusSuccess
	StatusError   = common.StatusError
)

// Status is the transient message the page displays after each action.
type Status = common.Status

func newStatus(text, kind string, clearAfter time.Duration) Status {
	return common.NewStatus(text, kind, clearAfter)
}
