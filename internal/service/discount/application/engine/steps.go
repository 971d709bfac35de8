package engine

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"pricepoint/internal/service/discount/domain"
)

// validationHandler 在评估开始前拒绝不合法的活动或购物车。
type validationHandler struct {
	NextHandler
	engine *Engine
}

func (h *validationHandler) Handle(ec *EvaluationContext) error {
	_, span := ec.Tracer.Start(ec.Ctx, "engine.Validate")
	defer span.End()

	errs := &domain.ConfigurationError{}
	if err := ec.Cart.Validate(); err != nil {
		errs.Merge(asConfigurationError(err))
	} else {
		subtotal := decimal.Zero
		for _, l := range ec.Cart.Lines {
			subtotal = subtotal.Add(l.Value().Round(h.engine.scale))
		}
		ec.subtotal = subtotal
	}

	if ec.Campaign == nil {
		errs.Add("campaign", "no campaign supplied")
	} else if err := h.engine.ValidateCampaign(ec.Campaign); err != nil {
		errs.Merge(asConfigurationError(err))
	}

	if err := errs.OrNil(); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Int("config.violations", len(errs.Violations)))
		ec.fail(domain.StatusConfigurationError, err)
		return nil
	}
	return h.executeNext(ec)
}

// applicabilityHandler 检查活动开关、生效窗口与资格表达式。
type applicabilityHandler struct {
	NextHandler
	engine *Engine
}

func (h *applicabilityHandler) Handle(ec *EvaluationContext) error {
	_, span := ec.Tracer.Start(ec.Ctx, "engine.CheckApplicability")
	defer span.End()

	c := ec.Campaign
	if !c.IsApplicableAt(ec.Cart.At) {
		ec.Status = domain.StatusCampaignInactive
		ec.warn(domain.WarningCampaign, "campaign %q is not active at %s", c.ID, ec.Cart.At.Format(time.RFC3339))
		span.AddEvent("campaign inactive")
		return nil
	}

	if strings.TrimSpace(c.Eligibility) != "" {
		eligible, err := h.engine.rules.Evaluate(c.Eligibility, factOf(ec.Cart))
		if err != nil {
			span.RecordError(err)
			ec.fail(domain.StatusConfigurationError, errors.Wrap(err, "evaluate eligibility expression"))
			return nil
		}
		if !eligible {
			ec.Status = domain.StatusNotEligible
			ec.warn(domain.WarningCampaign, "cart does not satisfy eligibility of campaign %q", c.ID)
			span.AddEvent("cart not eligible")
			return nil
		}
	}
	return h.executeNext(ec)
}

// resolutionHandler 运行 RuleResolver, 为每一行产生规则绑定。
type resolutionHandler struct {
	NextHandler
}

func (h *resolutionHandler) Handle(ec *EvaluationContext) error {
	_, span := ec.Tracer.Start(ec.Ctx, "engine.ResolveRules")
	defer span.End()

	resolver := NewRuleResolver(ec.Campaign)
	ec.Warnings = append(ec.Warnings, resolver.Warnings()...)

	ec.bindings = make([]LineBindings, len(ec.Cart.Lines))
	bound := 0
	for i, line := range ec.Cart.Lines {
		ec.bindings[i] = resolver.Resolve(i, line)
		bound += len(ec.bindings[i].Rules)
	}
	span.SetAttributes(attribute.Int("cart.lines", len(ec.Cart.Lines)), attribute.Int("rules.bound", bound))
	return h.executeNext(ec)
}

// lineHandler 按购物车顺序评估每一行, 单次生效跟踪器在这里创建并贯穿所有行。
type lineHandler struct {
	NextHandler
	evaluator *LineEvaluator
}

func (h *lineHandler) Handle(ec *EvaluationContext) error {
	_, span := ec.Tracer.Start(ec.Ctx, "engine.EvaluateLines")
	defer span.End()

	ec.tracker = NewOneTimeTracker(ec.Campaign.IsOneTimePerTransaction)
	ec.lines = make([]domain.LineDiscount, 0, len(ec.Cart.Lines))
	for i, line := range ec.Cart.Lines {
		ld := h.evaluator.Evaluate(i, line, ec.bindings[i], ec.tracker)
		if ld.Capped {
			ec.warn(domain.WarningCapped, "discount on line %d (%s) capped at line value %s", i, ld.ProductID, ld.OriginalValue)
		}
		ec.lines = append(ec.lines, ld)
	}
	span.SetAttributes(attribute.Int("one_time.claimed", ec.tracker.Len()))
	return h.executeNext(ec)
}

// cartHandler 评估整单规则。
type cartHandler struct {
	NextHandler
	evaluator *CartEvaluator
}

func (h *cartHandler) Handle(ec *EvaluationContext) error {
	_, span := ec.Tracer.Start(ec.Ctx, "engine.EvaluateCart")
	defer span.End()

	records, capped := h.evaluator.Evaluate(ec.Campaign, ec.lines)
	ec.cartDiscounts = records
	if capped {
		ec.warn(domain.WarningCapped, "cart discount capped at post-line subtotal")
	}
	span.SetAttributes(attribute.Int("cart.rules_applied", len(records)))
	return h.executeNext(ec)
}

func factOf(cart *domain.Cart) domain.Fact {
	fact := domain.Fact{
		Subtotal: cart.Subtotal().InexactFloat64(),
		Quantity: cart.TotalQuantity().InexactFloat64(),
		Lines:    int64(len(cart.Lines)),
		Products: []string{},
		Batches:  []string{},
	}
	for _, l := range cart.Lines {
		fact.Products = append(fact.Products, l.ProductID)
		if l.BatchID != "" {
			fact.Batches = append(fact.Batches, l.BatchID)
		}
	}
	return fact
}

func asConfigurationError(err error) *domain.ConfigurationError {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr
	}
	return &domain.ConfigurationError{Violations: []domain.Violation{{Path: "", Message: err.Error()}}}
}
