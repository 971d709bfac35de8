package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"pricepoint/internal/service/discount/domain"
)

// EvaluationContext 在评估链中传递单次评估的全部可变状态。
// 它只存在于一次 Evaluate 调用内, 返回后即被丢弃。
type EvaluationContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	Campaign *domain.Campaign
	Cart     *domain.Cart

	Status   domain.Status
	Err      error
	Warnings []domain.Warning

	subtotal      decimal.Decimal
	bindings      []LineBindings
	tracker       *OneTimeTracker
	lines         []domain.LineDiscount
	cartDiscounts []domain.Contribution
}

func (ec *EvaluationContext) fail(status domain.Status, err error) {
	ec.Status = status
	ec.Err = err
}

func (ec *EvaluationContext) warn(code domain.WarningCode, format string, args ...any) {
	ec.Warnings = append(ec.Warnings, domain.Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}
