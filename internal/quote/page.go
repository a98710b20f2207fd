package quote

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/noah-isme/engineroom-pricing/internal/display"
	"github.com/noah-isme/engineroom-pricing/internal/pricing"
)

//go:embed templates/page.html.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html.tmpl"))

type pageData struct {
	Tiers        []display.TierCard
	Form         formView
	Blank        clientRow
	Table        *display.Table
	CSRFToken    string
	ClearAfterMs int64
	MaxClients   int
	Submitting   string
}

// formView holds the values the form is rendered with. After a successful
// calculation it mirrors the stored quote so the inputs survive a reload.
type formView struct {
	CompanyName  string
	CompanyEmail string
	Clients      []clientRow
}

type clientRow struct {
	Name         string
	Transactions int
	Statements   int
	Options      []tierOption
}

type tierOption struct {
	ID       pricing.TierID
	Label    string
	Selected bool
}

func newClientRow(entry pricing.ClientEntry) clientRow {
	row := clientRow{Name: entry.Name, Transactions: entry.Transactions, Statements: entry.Statements}
	for _, id := range pricing.TierIDs {
		row.Options = append(row.Options, tierOption{ID: id, Label: id.Label(), Selected: id == entry.Tier})
	}
	return row
}

func formFromQuote(res *pricing.Result) formView {
	form := formView{CompanyName: res.CompanyName, CompanyEmail: res.CompanyEmail}
	for _, c := range res.Clients {
		form.Clients = append(form.Clients, newClientRow(c.ClientEntry))
	}
	return form
}

// Page handles GET / with the pricing cards, the form and the session's
// current results.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Tiers:        display.TierCards(h.engine.Catalog),
		Blank:        newClientRow(pricing.ClientEntry{Tier: pricing.Gold}),
		ClearAfterMs: h.clearAfter.Milliseconds(),
		MaxClients:   h.maxClients,
		Submitting:   MsgSubmitting,
	}
	if _, res, err := h.current(r); err == nil {
		data.Form = formFromQuote(res)
		data.Table = display.ResultTable(res)
	}
	if len(data.Form.Clients) == 0 {
		data.Form.Clients = []clientRow{data.Blank}
	}
	if h.csrf != nil {
		data.CSRFToken = h.csrf.Token(w, r)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error().Err(err).Msg("render page")
	}
}
