package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"pricepoint/internal/service/discount/application"
	"pricepoint/internal/service/discount/application/engine"
	"pricepoint/internal/service/discount/domain"
)

type stubRepo struct {
	mu        sync.Mutex
	campaigns map[string]domain.Campaign
}

func (r *stubRepo) FindByID(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrCampaignNotFound, "campaign %s", id)
	}
	return &c, nil
}

func (r *stubRepo) FindDefault(_ context.Context) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.IsDefault {
			return &c, nil
		}
	}
	return nil, domain.ErrNoDefaultCampaign
}

func (r *stubRepo) List(_ context.Context) ([]*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		out = append(out, &c)
	}
	return out, nil
}

func (r *stubRepo) Save(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = *c
	return nil
}

func newTestServer(t *testing.T, campaigns ...domain.Campaign) (*httptest.Server, *AuditHub) {
	t.Helper()
	repo := &stubRepo{campaigns: map[string]domain.Campaign{}}
	for _, c := range campaigns {
		repo.campaigns[c.ID] = c
	}
	tracer := noop.NewTracerProvider().Tracer("test")
	eng := engine.New(engine.WithTracer(tracer))
	hub := NewAuditHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	svc := application.NewDiscountService(eng, repo, tracer, application.WithAuditBroadcaster(hub))
	admin := application.NewCampaignAdminService(eng, repo, tracer)

	mux := http.NewServeMux()
	NewDiscountHandler(svc, admin, hub).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func fixedCampaign(id string) domain.Campaign {
	return domain.Campaign{
		ID:        id,
		IsActive:  true,
		IsDefault: true,
		Defaults: domain.RuleBundle{Value: &domain.Rule{
			Name:           "Two off",
			IsEnabled:      true,
			Type:           domain.DiscountTypeFixedAmount,
			Amount:         decimal.NewFromInt(2),
			ApplyFixedOnce: true,
		}},
	}
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestDiscountHandler_Evaluate(t *testing.T) {
	srv, _ := newTestServer(t, fixedCampaign("spring"))

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/discounts/evaluate",
		`{"cart":{"id":"cart-1","lines":[{"product_id":"A","quantity":"5","unit_price":"100"}]}}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "spring", body["campaign_id"])
	assert.Equal(t, "2", body["total_discount"])
	assert.Equal(t, "498", body["final_total"])
	assert.NotEmpty(t, body["evaluation_id"])
}

func TestDiscountHandler_EvaluateErrors(t *testing.T) {
	srv, _ := newTestServer(t, fixedCampaign("spring"))

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/discounts/evaluate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/discounts/evaluate", `{"campaign_id":"nope","cart":{}}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "campaign not found")

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/discounts/evaluate",
		`{"cart":{"lines":[{"product_id":"","quantity":"1","unit_price":"1"}]}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "CONFIGURATION_ERROR", body["status"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/discounts/evaluate", ``)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDiscountHandler_EvaluateBatch(t *testing.T) {
	srv, _ := newTestServer(t, fixedCampaign("spring"))

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/discounts/evaluate/batch", `{"requests":[
		{"cart":{"id":"a","lines":[{"product_id":"A","quantity":"1","unit_price":"10"}]}},
		{"campaign_id":"missing","cart":{"id":"b"}}
	]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	items := body["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "a", first["result"].(map[string]any)["cart_id"])
	assert.Contains(t, items[1].(map[string]any)["error"], "campaign not found")
}

func TestDiscountHandler_Campaigns(t *testing.T) {
	srv, _ := newTestServer(t)

	campaign := fixedCampaign("spring")
	raw, err := json.Marshal(campaign)
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/v1/campaigns", string(raw))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "spring", body["id"])
	assert.Equal(t, float64(1), body["version"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/campaigns/spring", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "spring", body["id"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/campaigns/other", ``)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	listResp, err := http.Get(srv.URL + "/v1/campaigns")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var list []domain.Campaign
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list, 1)

	campaign.ProductConfigurations = []domain.ScopeConfiguration{{ScopeKey: "A"}, {ScopeKey: "A"}}
	raw, _ = json.Marshal(campaign)
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/v1/campaigns", string(raw))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	campaign.ProductConfigurations = nil
	campaign.Defaults.Value.Amount = decimal.NewFromInt(-5)
	raw, _ = json.Marshal(campaign)
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/v1/campaigns", string(raw))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	violations := body["violations"].([]any)
	require.Len(t, violations, 1)
	assert.Equal(t, "defaults.value.amount", violations[0].(map[string]any)["path"])
}

func TestAuditHub_StreamsEvaluations(t *testing.T) {
	srv, hub := newTestServer(t, fixedCampaign("spring"))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audit?campaignId=spring"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/v1/discounts/evaluate", "application/json",
		bytes.NewBufferString(`{"cart":{"id":"cart-9","lines":[{"product_id":"A","quantity":"1","unit_price":"10"}]}}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg AuditMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "cart-9", msg.CartID)
	assert.Equal(t, domain.StatusOK, msg.Status)
	require.Len(t, msg.AppliedRules, 1)
	assert.Equal(t, "Two off", msg.AppliedRules[0].RuleName)
	assert.True(t, msg.TotalDiscount.Equal(decimal.NewFromInt(2)))
}
