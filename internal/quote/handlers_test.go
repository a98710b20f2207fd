package quote_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/engineroom-pricing/internal/common"
	"github.com/noah-isme/engineroom-pricing/internal/notify"
	"github.com/noah-isme/engineroom-pricing/internal/pricing"
	"github.com/noah-isme/engineroom-pricing/internal/quote"
	"github.com/noah-isme/engineroom-pricing/internal/resilience"
	"github.com/noah-isme/engineroom-pricing/internal/security"
	"github.com/noah-isme/engineroom-pricing/internal/session"
)

type envelope struct {
	Data   json.RawMessage   `json:"data"`
	Error  *common.ErrorBody `json:"error"`
	Status quote.Status      `json:"status"`
}

type quoteData struct {
	Quote   pricing.Result `json:"quote"`
	Display struct {
		Rows []struct {
			Client string `json:"client"`
			Total  string `json:"total"`
		} `json:"rows"`
	} `json:"display"`
}

type stubSubmitter struct {
	err      error
	payloads []notify.Payload
}

func (s *stubSubmitter) Submit(_ context.Context, p notify.Payload) (notify.Ack, error) {
	s.payloads = append(s.payloads, p)
	if s.err != nil {
		return notify.Ack{}, s.err
	}
	return notify.Ack{SubmissionID: "sub-1", StatusCode: http.StatusOK}, nil
}

type testServer struct {
	router http.Handler
	store  *session.MemoryStore
}

func newTestServer(t *testing.T, submitter notify.Submitter) *testServer {
	t.Helper()
	fixed := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	store := session.NewMemoryStore(time.Hour)
	h := quote.NewHandler(quote.HandlerConfig{
		Engine:     &pricing.Engine{Catalog: pricing.DefaultCatalog(), Now: func() time.Time { return fixed }},
		Store:      store,
		Cookies:    session.Cookies{Name: "sid"},
		Submitter:  submitter,
		Logger:     zerolog.Nop(),
		MinClients: 1,
		MaxClients: 3,
		Now:        func() time.Time { return fixed },
	})
	r := chi.NewRouter()
	h.Register(r)
	return &testServer{router: r, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

const goldQuote = `{"companyName":"Acme Co","companyEmail":"ops@acme.com","clients":[{"name":"Gold One","tier":"gold","transactions":10,"statements":2}]}`

func (s *testServer) calculate(t *testing.T, body string) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/quotes", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestTiers(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/v1/tiers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []pricing.Tier `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 3)
	require.Equal(t, pricing.Gold, body.Data[0].ID)
	require.Equal(t, 26.0, body.Data[0].TransactionRate)
	require.Equal(t, pricing.Bronze, body.Data[2].ID)
}

func TestCalculateStoresCurrentQuote(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodPost, "/api/v1/quotes", goldQuote)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decode(t, rec)
	require.Equal(t, quote.MsgCalculated, env.Status.Text)
	require.Equal(t, quote.StatusSuccess, env.Status.Type)
	require.Equal(t, int64(3000), env.Status.ClearAfterMs)

	var data quoteData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, 580.0, data.Quote.Totals.Subtotal)
	require.Equal(t, 116.0, data.Quote.Totals.DiscountAmount)
	require.Equal(t, 464.0, data.Quote.Totals.GrandTotal)
	require.Equal(t, "R464", data.Display.Rows[0].Total)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, 1, srv.store.Len())

	current := srv.do(t, http.MethodGet, "/api/v1/quotes/current", "", cookies[0])
	require.Equal(t, http.StatusOK, current.Code)
	var again quoteData
	require.NoError(t, json.Unmarshal(decode(t, current).Data, &again))
	require.Equal(t, data.Quote.Totals, again.Quote.Totals)
}

func TestCalculateReplacesPreviousQuote(t *testing.T) {
	srv := newTestServer(t, nil)
	cookie := srv.calculate(t, goldQuote)

	second := `{"companyName":"Acme Co","companyEmail":"ops@acme.com","clients":[{"name":"B","tier":"bronze","transactions":1,"statements":0}]}`
	rec := srv.do(t, http.MethodPost, "/api/v1/quotes", second, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Result().Cookies())

	current := srv.do(t, http.MethodGet, "/api/v1/quotes/current", "", cookie)
	var data quoteData
	require.NoError(t, json.Unmarshal(decode(t, current).Data, &data))
	require.Equal(t, 14.4, data.Quote.Totals.GrandTotal)
	require.Equal(t, 1, srv.store.Len())
}

func TestCalculateFailureKeepsPreviousQuote(t *testing.T) {
	srv := newTestServer(t, nil)
	cookie := srv.calculate(t, goldQuote)

	rec := srv.do(t, http.MethodPost, "/api/v1/quotes", `{"companyName":"","companyEmail":"x","clients":[]}`, cookie)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	current := srv.do(t, http.MethodGet, "/api/v1/quotes/current", "", cookie)
	require.Equal(t, http.StatusOK, current.Code)
}

func TestCalculateValidation(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
		field   string
		reason  string
		indices []any
	}{
		{
			name:    "company name first",
			body:    `{"companyName":" ","companyEmail":"bad","clients":[{"name":"","tier":"gold"}]}`,
			message: "Please enter a company name",
			field:   "companyName",
			reason:  "required",
		},
		{
			name:    "email required",
			body:    `{"companyName":"Acme","companyEmail":"","clients":[{"name":"","tier":"gold"}]}`,
			message: "Please enter an email address",
			field:   "companyEmail",
			reason:  "required",
		},
		{
			name:    "email format",
			body:    `{"companyName":"Acme","companyEmail":"a@b","clients":[{"name":"","tier":"gold"}]}`,
			message: "Please enter a valid email address",
			field:   "companyEmail",
			reason:  "invalidFormat",
		},
		{
			name:    "all missing names",
			body:    `{"companyName":"Acme","companyEmail":"a@b.co","clients":[{"name":"","tier":"gold"},{"name":"x","tier":"silver"},{"name":"  ","tier":"bronze"}]}`,
			message: "Please enter names for all clients",
			field:   "clients",
			reason:  "missingNames",
			indices: []any{0.0, 2.0},
		},
		{
			name:    "negative counts",
			body:    `{"companyName":"Acme","companyEmail":"a@b.co","clients":[{"name":"a","tier":"gold","transactions":-1}]}`,
			message: "Transactions and statements cannot be negative",
			field:   "clients",
			reason:  "negativeCount",
			indices: []any{0.0},
		},
		{
			name:    "no clients",
			body:    `{"companyName":"Acme","companyEmail":"a@b.co","clients":[]}`,
			message: "Please add at least one client",
			field:   "clients",
			reason:  "required",
		},
	}
	srv := newTestServer(t, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/v1/quotes", tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			env := decode(t, rec)
			require.Equal(t, "VALIDATION_FAILED", env.Error.Code)
			require.Equal(t, tc.message, env.Status.Text)
			require.Equal(t, quote.StatusError, env.Status.Type)
			details := env.Error.Details.(map[string]any)
			require.Equal(t, tc.field, details["field"])
			require.Equal(t, tc.reason, details["reason"])
			if tc.indices != nil {
				require.Equal(t, tc.indices, details["indices"])
			}
		})
	}
	require.Equal(t, 0, srv.store.Len())
}

func TestCalculateShapeErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/v1/quotes", `{"companyName":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "BAD_REQUEST", decode(t, rec).Error.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/quotes", `{"companyName":"A","companyEmail":"a@b.co","clients":[{"name":"x","tier":"platinum"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.Equal(t, "UNKNOWN_TIER", env.Error.Code)
	require.Equal(t, 0.0, env.Error.Details.(map[string]any)["index"])

	rec = srv.do(t, http.MethodPost, "/api/v1/quotes", `{"companyName":"A","companyEmail":"a@b.co","clients":[{"name":"x","tier":"gold"},{"name":"y","tier":""}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env = decode(t, rec)
	require.Equal(t, "UNKNOWN_TIER", env.Error.Code)
	require.Equal(t, 1.0, env.Error.Details.(map[string]any)["index"])

	longName := strings.Repeat("n", 201)
	rec = srv.do(t, http.MethodPost, "/api/v1/quotes", `{"companyName":"A","companyEmail":"a@b.co","clients":[{"name":"`+longName+`","tier":"gold"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env = decode(t, rec)
	require.Equal(t, "INVALID_PAYLOAD", env.Error.Code)
	issue := env.Error.Details.([]any)[0].(map[string]any)
	require.Equal(t, "clients[0].name", issue["field"])
	require.Equal(t, "max", issue["rule"])

	four := `{"companyName":"A","companyEmail":"a@b.co","clients":[` +
		strings.Repeat(`{"name":"x","tier":"gold"},`, 3) + `{"name":"x","tier":"gold"}]}`
	rec = srv.do(t, http.MethodPost, "/api/v1/quotes", four)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "CLIENT_LIMIT", decode(t, rec).Error.Code)
}

func TestCalculateReportsCompanyNameBeforeTier(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, tier := range []string{"platinum", ""} {
		rec := srv.do(t, http.MethodPost, "/api/v1/quotes", `{"companyName":"","clients":[{"name":"a","tier":"`+tier+`"}]}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		env := decode(t, rec)
		require.Equal(t, "VALIDATION_FAILED", env.Error.Code)
		require.Equal(t, "Please enter a company name", env.Error.Message)
		details := env.Error.Details.(map[string]any)
		require.Equal(t, "companyName", details["field"])
		require.Equal(t, "required", details["reason"])
	}
}

func TestCurrentWithoutQuote(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/v1/quotes/current", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	require.Equal(t, "NO_RESULT", env.Error.Code)
	require.Equal(t, quote.MsgNoResult, env.Status.Text)
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/quotes/current/csv", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Please calculate costs first", decode(t, rec).Status.Text)

	cookie := srv.calculate(t, goldQuote)
	rec = srv.do(t, http.MethodGet, "/api/v1/quotes/current/csv", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv;charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="pricing-quote-Acme-Co.csv"`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, quote.MsgExported, rec.Header().Get("X-Status-Text"))
	require.Equal(t, "Client Name,Tier,Transactions,Supplier Statements,Transaction Cost,Supplier Recon Cost,Subtotal,Discount Amount,Total\n"+
		"\"Gold One\",Gold,10,2,260,320,580,116,464\n"+
		"\"TOTAL\",-,10,2,260,320,580,116,464\n", rec.Body.String())
}

func TestSubmitDeliversToWebhook(t *testing.T) {
	received := make(chan notify.Payload, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)

	srv := newTestServer(t, &notify.Webhook{URL: hook.URL, HTTP: &resilience.HTTPClient{Client: hook.Client()}})
	cookie := srv.calculate(t, goldQuote)

	rec := srv.do(t, http.MethodPost, "/api/v1/quotes/current/submit", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, quote.MsgSubmitted, decode(t, rec).Status.Text)

	p := <-received
	require.Equal(t, "Acme Co", p.CompanyName)
	require.Equal(t, "2026-06-01T09:00:00.000Z", p.DateSubmitted)
	require.Len(t, p.Quotes, 1)
	require.Equal(t, 464.0, p.Totals.GrandTotal)
}

func TestSubmitReportsWebhookStatus(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(hook.Close)

	srv := newTestServer(t, &notify.Webhook{URL: hook.URL, HTTP: &resilience.HTTPClient{Client: hook.Client()}})
	cookie := srv.calculate(t, goldQuote)

	rec := srv.do(t, http.MethodPost, "/api/v1/quotes/current/submit", "", cookie)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	env := decode(t, rec)
	require.Equal(t, "SUBMISSION_FAILED", env.Error.Code)
	require.Equal(t, "Error submitting via Make: Make webhook request failed with status: 500", env.Status.Text)

	current := srv.do(t, http.MethodGet, "/api/v1/quotes/current", "", cookie)
	var data quoteData
	require.NoError(t, json.Unmarshal(decode(t, current).Data, &data))
	require.Equal(t, 464.0, data.Quote.Totals.GrandTotal)
}

func TestSubmitUnavailable(t *testing.T) {
	t.Run("no submitter", func(t *testing.T) {
		srv := newTestServer(t, nil)
		cookie := srv.calculate(t, goldQuote)
		rec := srv.do(t, http.MethodPost, "/api/v1/quotes/current/submit", "", cookie)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, quote.MsgNotConfigured, decode(t, rec).Status.Text)
	})

	t.Run("breaker open", func(t *testing.T) {
		stub := &stubSubmitter{err: resilience.ErrOpenCircuit}
		srv := newTestServer(t, stub)
		cookie := srv.calculate(t, goldQuote)
		rec := srv.do(t, http.MethodPost, "/api/v1/quotes/current/submit", "", cookie)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Len(t, stub.payloads, 1)
	})

	t.Run("no quote", func(t *testing.T) {
		stub := &stubSubmitter{}
		srv := newTestServer(t, stub)
		rec := srv.do(t, http.MethodPost, "/api/v1/quotes/current/submit", "")
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, quote.MsgNoResult, decode(t, rec).Status.Text)
		require.Empty(t, stub.payloads)
	})
}

func TestPageRendersCardsAndResults(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Gold Tier")
	require.Contains(t, body, "R26 per transaction")
	require.Contains(t, body, "-20% discount")
	require.NotContains(t, body, "<tr class=\"total\">")

	cookie := srv.calculate(t, goldQuote)
	rec = srv.do(t, http.MethodGet, "/", "", cookie)
	body = rec.Body.String()
	require.Contains(t, body, "Gold One")
	require.Contains(t, body, "R464")
	require.Contains(t, body, "-R116")
}

func TestPageKeepsFormAfterCalculation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/", "")
	body := rec.Body.String()
	require.Contains(t, body, `<input name="companyName" placeholder="Company name" value="">`)
	require.Contains(t, body, `<option value="gold" selected>Gold</option>`)
	require.Contains(t, body, "<th>Transaction Cost</th><th>Supplier Recon Cost</th>")
	require.NotContains(t, body, "location.reload")

	two := `{"companyName":"Acme Co","companyEmail":"ops@acme.com","clients":[` +
		`{"name":"Gold One","tier":"gold","transactions":10,"statements":2},` +
		`{"name":"Bronze Two","tier":"Bronze","transactions":3,"statements":0}]}`
	cookie := srv.calculate(t, two)
	rec = srv.do(t, http.MethodGet, "/", "", cookie)
	body = rec.Body.String()
	require.Contains(t, body, `value="Acme Co"`)
	require.Contains(t, body, `value="ops@acme.com"`)
	require.Contains(t, body, `value="Gold One"`)
	require.Contains(t, body, `value="Bronze Two"`)
	require.Contains(t, body, `<input data-field="transactions" type="number" min="0" value="10">`)
	require.Contains(t, body, `<option value="bronze" selected>Bronze</option>`)
	// one per client plus the blank row template
	require.Equal(t, 3, strings.Count(body, ` selected>`))
}

func TestPageMarksOffendingClients(t *testing.T) {
	srv := newTestServer(t, nil)
	body := srv.do(t, http.MethodGet, "/", "").Body.String()
	require.Contains(t, body, "markErrors(res.body.error.details)")
	require.Contains(t, body, "details.indices")
	require.Contains(t, body, "classList.remove('invalid')")

	rec := srv.do(t, http.MethodPost, "/api/v1/quotes",
		`{"companyName":"Acme","companyEmail":"a@b.co","clients":[{"name":"","tier":"gold"},{"name":"ok","tier":"gold"},{"name":" ","tier":"gold"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	details := decode(t, rec).Error.Details.(map[string]any)
	require.Equal(t, "missingNames", details["reason"])
	require.Equal(t, []any{0.0, 2.0}, details["indices"])
}

func TestPageIssuesCSRFToken(t *testing.T) {
	h := quote.NewHandler(quote.HandlerConfig{CSRF: &security.CSRF{}, Logger: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.Page(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "csrf_token", cookies[0].Name)
	require.Contains(t, rec.Body.String(), `<meta name="csrf-token" content="`+cookies[0].Value+`">`)
}

type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSubmitter) Submit(ctx context.Context, _ notify.Payload) (notify.Ack, error) {
	close(b.entered)
	<-b.release
	return notify.Ack{SubmissionID: "slow", StatusCode: http.StatusOK}, nil
}

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	stub := &blockingSubmitter{entered: make(chan struct{}), release: make(chan struct{})}
	srv := newTestServer(t, stub)
	cookie := srv.calculate(t, goldQuote)

	first := make(chan int, 1)
	go func() {
		first <- srv.do(t, http.MethodPost, "/api/v1/quotes/current/submit", "", cookie).Code
	}()
	<-stub.entered

	rec := srv.do(t, http.MethodPost, "/api/v1/quotes/current/submit", "", cookie)
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	require.Equal(t, "SUBMISSION_IN_PROGRESS", env.Error.Code)
	require.Equal(t, quote.MsgInProgress, env.Status.Text)

	close(stub.release)
	require.Equal(t, http.StatusOK, <-first)
}
