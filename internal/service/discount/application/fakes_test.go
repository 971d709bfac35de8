package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"pricepoint/internal/service/discount/application/engine"
	"pricepoint/internal/service/discount/domain"
)

var tracer = noop.NewTracerProvider().Tracer("test")

type memRepo struct {
	mu        sync.Mutex
	campaigns map[string]domain.Campaign
	finds     int
	saveErr   error
}

func newMemRepo(campaigns ...*domain.Campaign) *memRepo {
	r := &memRepo{campaigns: map[string]domain.Campaign{}}
	for _, c := range campaigns {
		r.campaigns[c.ID] = *c
	}
	return r
}

func (r *memRepo) FindByID(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	c, ok := r.campaigns[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrCampaignNotFound, "campaign %s", id)
	}
	return &c, nil
}

func (r *memRepo) FindDefault(_ context.Context) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	for _, c := range r.campaigns {
		if c.IsDefault && c.IsActive {
			return &c, nil
		}
	}
	return nil, domain.ErrNoDefaultCampaign
}

func (r *memRepo) List(_ context.Context) ([]*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) Save(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if c.IsDefault {
		for id, other := range r.campaigns {
			other.IsDefault = false
			r.campaigns[id] = other
		}
	}
	r.campaigns[c.ID] = *c
	return nil
}

type memCache struct {
	mu          sync.Mutex
	items       map[string]domain.Campaign
	invalidated []string
	getErr      error
}

func newMemCache() *memCache {
	return &memCache{items: map[string]domain.Campaign{}}
}

func (c *memCache) Get(_ context.Context, key string) (*domain.Campaign, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *memCache) Set(_ context.Context, key string, campaign *domain.Campaign, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = *campaign
	return nil
}

func (c *memCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.invalidated = append(c.invalidated, keys...)
	return nil
}

type capturePublisher struct {
	mu        sync.Mutex
	evaluated []*domain.DiscountResult
	updated   []string
	err       error
}

func (p *capturePublisher) PublishEvaluated(_ context.Context, r *domain.DiscountResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluated = append(p.evaluated, r)
	return p.err
}

func (p *capturePublisher) PublishCampaignUpdated(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, id)
	return p.err
}

type captureAudit struct {
	mu      sync.Mutex
	results []*domain.DiscountResult
}

func (a *captureAudit) Broadcast(_ context.Context, r *domain.DiscountResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, r)
}

type countingMetrics struct {
	mu          sync.Mutex
	evaluations map[domain.Status]int
	hits, miss  int
}

func (m *countingMetrics) ObserveEvaluation(r *domain.DiscountResult, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evaluations == nil {
		m.evaluations = map[domain.Status]int{}
	}
	m.evaluations[r.Status]++
}

func (m *countingMetrics) ObserveCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.miss++
	}
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	released int
	err      error
}

func (l *recordingLocker) Lock(_ context.Context, resource string) (func() error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	l.locked = append(l.locked, resource)
	l.mu.Unlock()
	return func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEngine() *engine.Engine {
	return engine.New(engine.WithTracer(tracer))
}

// tenPercentCampaign 默认对每行打九折
func tenPercentCampaign(id string, isDefault bool) *domain.Campaign {
	return &domain.Campaign{
		ID:        id,
		Name:      "ten percent",
		IsActive:  true,
		IsDefault: isDefault,
		Defaults: domain.RuleBundle{Value: &domain.Rule{
			IsEnabled: true,
			Type:      domain.DiscountTypePercentage,
			Amount:    dec("10"),
		}},
	}
}

func cartOf(id string, lines ...domain.LineItem) domain.Cart {
	return domain.Cart{ID: id, Lines: lines}
}

func lineOf(product, price, qty string) domain.LineItem {
	return domain.LineItem{ProductID: product, UnitPrice: dec(price), Quantity: dec(qty)}
}
