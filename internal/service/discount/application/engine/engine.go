// internal/service/discount/application/engine/engine.go
package engine

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pricepoint/internal/service/discount/domain"
)

// DefaultScale 是金额保留的小数位数。
const DefaultScale int32 = 2

// Engine 是折扣评估的纯函数核心: 输入购物车和活动快照, 输出 DiscountResult。
// 它不做 I/O, 不保存跨评估的状态, 可以被多个 goroutine 并发调用。
type Engine struct {
	tracer    trace.Tracer
	rules     domain.RuleEngine
	scale     int32
	chain     Handler
	assembler ResultAssembler
}

type Option func(*Engine)

// WithTracer 设置链路追踪使用的 Tracer, 默认取全局 TracerProvider。
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithRuleEngine 设置资格表达式的求值器。未设置时带有资格表达式的活动会被视为配置错误。
func WithRuleEngine(rules domain.RuleEngine) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithScale 设置金额舍入的小数位数。
func WithScale(scale int32) Option {
	return func(e *Engine) { e.scale = scale }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		tracer: otel.Tracer("pricepoint/discount-engine"),
		scale:  DefaultScale,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.chain = e.buildChain()
	return e
}

// buildChain 负责构建和连接评估链中的所有处理器
func (e *Engine) buildChain() Handler {
	head := &validationHandler{engine: e}
	head.SetNext(&applicabilityHandler{engine: e}).
		SetNext(new(resolutionHandler)).
		SetNext(&lineHandler{evaluator: NewLineEvaluator(e.scale)}).
		SetNext(&cartHandler{evaluator: NewCartEvaluator(e.scale)})
	return head
}

// Evaluate 对一个购物车执行一次完整评估。它总是返回结果; 调用方通过 Status/Error 判断致命的配置错误。
// 同一输入重复评估得到相同结果。
func (e *Engine) Evaluate(ctx context.Context, campaign *domain.Campaign, cart *domain.Cart) (result domain.DiscountResult) {
	ctx, span := e.tracer.Start(ctx, "engine.Evaluate")
	defer span.End()

	if cart == nil {
		cart = &domain.Cart{}
	}
	ec := &EvaluationContext{
		Ctx:      ctx,
		Tracer:   e.tracer,
		Campaign: campaign,
		Cart:     cart,
		Status:   domain.StatusOK,
	}

	defer func() {
		if rec := recover(); rec != nil {
			ec.fail(domain.StatusInternalError, errors.Errorf("discount evaluation panicked: %v", rec))
			span.SetStatus(codes.Error, "evaluation panicked")
			result = e.assembler.Assemble(&EvaluationContext{
				Campaign: campaign, Cart: cart, Status: ec.Status, Err: ec.Err, subtotal: ec.subtotal,
			})
		}
	}()

	if err := e.chain.Handle(ec); err != nil {
		ec.fail(domain.StatusInternalError, err)
	}
	result = e.assembler.Assemble(ec)

	span.SetAttributes(
		attribute.String("discount.status", string(result.Status)),
		attribute.String("discount.total", result.TotalDiscount.String()),
		attribute.Int("discount.warnings", len(result.Warnings)),
	)
	if !result.Succeeded() {
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}

// ValidateCampaign 校验活动配置, 包括资格表达式能否编译。
func (e *Engine) ValidateCampaign(c *domain.Campaign) error {
	errs := &domain.ConfigurationError{}
	if err := c.Validate(); err != nil {
		errs.Merge(asConfigurationError(err))
	}
	if expr := strings.TrimSpace(c.Eligibility); expr != "" {
		switch {
		case e.rules == nil:
			errs.Add("eligibility", "eligibility expressions are not supported by this engine")
		default:
			if err := e.rules.Compile(expr); err != nil {
				errs.Add("eligibility", "%v", err)
			}
		}
	}
	return errs.OrNil()
}
