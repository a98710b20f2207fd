package pricing

import (
	"fmt"
	"strings"
)

// Field names reported by ValidationError.
const (
	FieldCompanyName  = "companyName"
	FieldCompanyEmail = "companyEmail"
	FieldClients      = "clients"
)

// Reasons reported by ValidationError.
const (
	ReasonRequired      = "required"
	ReasonInvalidFormat = "invalidFormat"
	ReasonMissingNames  = "missingNames"
	ReasonNegativeCount = "negativeCount"
)

// ValidationError describes the first input problem found in a Request.
// Indices is only populated for client-scoped reasons and lists every offender.
type ValidationError struct {
	Field   string `json:"field"`
	Reason  string `json:"reason"`
	Indices []int  `json:"indices,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Indices) == 0 {
		return fmt.Sprintf("pricing: %s %s", e.Field, e.Reason)
	}
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprint(idx)
	}
	return fmt.Sprintf("pricing: %s %s at [%s]", e.Field, e.Reason, strings.Join(parts, ","))
}

// Message returns the short text shown to the person filling in the form.
func (e *ValidationError) Message() string {
	switch {
	case e.Field == FieldCompanyName:
		return "Please enter a company name"
	case e.Field == FieldCompanyEmail && e.Reason == ReasonRequired:
		return "Please enter an email address"
	case e.Field == FieldCompanyEmail:
		return "Please enter a valid email address"
	case e.Reason == ReasonMissingNames:
		return "Please enter names for all clients"
	case e.Reason == ReasonNegativeCount:
		return "Transactions and statements cannot be negative"
	case e.Field == FieldClients:
		return "Please add at least one client"
	default:
		return "Invalid quote request"
	}
}
