package quote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/engineroom-pricing/internal/common"
	"github.com/noah-isme/engineroom-pricing/internal/pricing"
)

type clientPayload struct {
	Name         string `json:"name" validate:"max=200"`
	Tier         string `json:"tier" validate:"max=32"`
	Transactions int    `json:"transactions"`
	Statements   int    `json:"statements"`
}

type calculateRequest struct {
	CompanyName  string          `json:"companyName" validate:"max=200"`
	CompanyEmail string          `json:"companyEmail" validate:"max=254"`
	Clients      []clientPayload `json:"clients" validate:"dive"`
}

// FieldIssue describes one shape problem in a request body.
type FieldIssue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeCalculate reads and shape-checks the body. Domain rules, tier
// membership included, are left to the engine so their ordering is preserved.
func (h *Handler) decodeCalculate(r *http.Request) (pricing.Request, error) {
	var body calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return pricing.Request{}, &common.AppError{
			Code:       "BAD_REQUEST",
			Message:    "invalid request payload",
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	}
	if err := h.validate.Struct(body); err != nil {
		return pricing.Request{}, shapeError(err)
	}
	if n := len(body.Clients); n > 0 {
		bound := fmt.Sprintf("min=%d,max=%d", h.minClients, h.maxClients)
		if err := h.validate.Var(body.Clients, bound); err != nil {
			return pricing.Request{}, &common.AppError{
				Code:       "CLIENT_LIMIT",
				Message:    fmt.Sprintf("A quote must have between %d and %d clients", h.minClients, h.maxClients),
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
				Details:    map[string]int{"min": h.minClients, "max": h.maxClients, "got": n},
			}
		}
	}

	req := pricing.Request{
		CompanyName:  body.CompanyName,
		CompanyEmail: body.CompanyEmail,
		Clients:      make([]pricing.ClientEntry, 0, len(body.Clients)),
	}
	for _, c := range body.Clients {
		req.Clients = append(req.Clients, pricing.ClientEntry{
			Name:         c.Name,
			Tier:         pricing.NormalizeTierID(c.Tier),
			Transactions: c.Transactions,
			Statements:   c.Statements,
		})
	}
	return req, nil
}

func shapeError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &common.AppError{Code: "INVALID_PAYLOAD", Message: MsgInvalidPayload, HTTPStatus: http.StatusBadRequest, Err: err}
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		issues = append(issues, FieldIssue{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return &common.AppError{
		Code:       "INVALID_PAYLOAD",
		Message:    MsgInvalidPayload,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    issues,
	}
}
