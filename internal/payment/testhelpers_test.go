package payment_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fills-ai/payments-api/internal/config"
	"github.com/fills-ai/payments-api/internal/payment"
	"github.com/fills-ai/payments-api/internal/resilience"
)

// fakeGateway imitates the PhonePe OAuth and checkout endpoints.
type fakeGateway struct {
	srv *httptest.Server

	tokenHits  atomic.Int32
	payHits    atomic.Int32
	statusHits atomic.Int32

	mu          sync.Mutex
	tokenBody   string
	tokenStatus int
	payStatus   int
	payBody     string
	payDelay    time.Duration
	statusCode  int
	statusBody  string
	lastPayload payment.PaymentPayload
	lastAuth    string
	lastForm    map[string]string
	lastOrderID string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"tok-1","token_type":"O-Bearer","expires_at":4102444800,"expires_in":3600}`,
		payStatus:   http.StatusOK,
		payBody:     `{"orderId":"OMO2501","state":"PENDING","expireAt":1760000000000,"redirectUrl":"https://mercury.phonepe.test/transact/OMO2501"}`,
		statusCode:  http.StatusOK,
		statusBody:  `{"orderId":"OMO2501","state":"COMPLETED","amount":49999}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenHits.Add(1)
		_ = r.ParseForm()
		g.mu.Lock()
		g.lastForm = map[string]string{}
		for k := range r.PostForm {
			g.lastForm[k] = r.PostForm.Get(k)
		}
		status, body := g.tokenStatus, g.tokenBody
		g.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("POST /checkout/v2/pay", func(w http.ResponseWriter, r *http.Request) {
		g.payHits.Add(1)
		var p payment.PaymentPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.lastPayload = p
		g.lastAuth = r.Header.Get("Authorization")
		status, body, delay := g.payStatus, g.payBody, g.payDelay
		g.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("GET /checkout/v2/order/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		g.statusHits.Add(1)
		g.mu.Lock()
		g.lastOrderID = r.PathValue("id")
		g.lastAuth = r.Header.Get("Authorization")
		status, body := g.statusCode, g.statusBody
		g.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGateway) config() config.Gateway {
	return config.Gateway{
		ClientID:      "FILLS_CLIENT",
		ClientSecret:  "s3cret",
		ClientVersion: "1",
		APIBaseURL:    g.srv.URL,
		OAuthURL:      g.srv.URL + "/v1/oauth/token",
	}
}

type staticResolver struct {
	cfg config.Gateway
	err error
}

func (s staticResolver) Gateway() (config.Gateway, error) { return s.cfg, s.err }

type staticCredentials config.WebhookCredentials

func (s staticCredentials) Webhook() config.WebhookCredentials { return config.WebhookCredentials(s) }

// newTestService wires a Service against the fake gateway. A nil breaker disables it.
func newTestService(g *fakeGateway, breaker *resilience.Breaker, timeout time.Duration) (*payment.Service, *payment.PhonePe) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	provider := payment.NewPhonePe(resilience.NewHTTPClient(timeout, breaker))
	svc := payment.NewService(staticResolver{cfg: g.config()}, provider, "ORDER")
	return svc, provider
}
