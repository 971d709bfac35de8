// internal/service/discount/infrastructure/rule/cel_engine.go
package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"pricepoint/internal/service/discount/domain"
)

// CELRuleEngine 是 domain.RuleEngine 接口的一个具体实现。
// 它使用 cel-go 评估活动的资格表达式, 可用变量:
//
//	subtotal  double        折前小计
//	quantity  double        总件数
//	lines     int           行数
//	products  list(string)  各行商品ID
//	batches   list(string)  各行批次ID
//
// 例如: subtotal >= 200.0 && "sku-42" in products
type CELRuleEngine struct {
	env *cel.Env

	mu          sync.RWMutex
	programs    map[string]cel.Program
	maxPrograms int
}

// DefaultMaxPrograms 是已编译表达式缓存的默认上限
const DefaultMaxPrograms = 1024

type CELOption func(*CELRuleEngine)

// WithMaxPrograms 设置已编译表达式缓存的上限, n <= 0 时忽略
func WithMaxPrograms(n int) CELOption {
	return func(e *CELRuleEngine) {
		if n > 0 {
			e.maxPrograms = n
		}
	}
}

// NewCELRuleEngine 创建一个新的规则引擎适配器实例。
func NewCELRuleEngine(opts ...CELOption) (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.DoubleType),
		cel.Variable("quantity", cel.DoubleType),
		cel.Variable("lines", cel.IntType),
		cel.Variable("products", cel.ListType(cel.StringType)),
		cel.Variable("batches", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}
	e := &CELRuleEngine{env: env, programs: make(map[string]cel.Program), maxPrograms: DefaultMaxPrograms}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Compile 实现了 domain.RuleEngine 接口。只做校验, 不写入缓存。
func (e *CELRuleEngine) Compile(expression string) error {
	e.mu.RLock()
	_, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return nil
	}
	_, err := e.compile(expression)
	return err
}

// Evaluate 实现了 domain.RuleEngine 接口。
func (e *CELRuleEngine) Evaluate(expression string, fact domain.Fact) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"subtotal": fact.Subtotal,
		"quantity": fact.Quantity,
		"lines":    fact.Lines,
		"products": fact.Products,
		"batches":  fact.Batches,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate %q", expression)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("expression %q returned %T, want bool", expression, out.Value())
	}
	return result, nil
}

// program 编译并缓存表达式。编译结果可以被并发的评估共享。
// 缓存满时随机淘汰一项, 保证缓存大小不超过 maxPrograms。
func (e *CELRuleEngine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if _, ok := e.programs[expression]; !ok && len(e.programs) >= e.maxPrograms {
		for k := range e.programs {
			delete(e.programs, k)
			break
		}
	}
	e.programs[expression] = prg
	e.mu.Unlock()
	return prg, nil
}

// CachedPrograms 返回当前缓存的已编译表达式数量。
func (e *CELRuleEngine) CachedPrograms() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

func (e *CELRuleEngine) compile(expression string) (cel.Program, error) {
	ast, iss := e.env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile %q", expression)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("expression %q must evaluate to bool, got %s", expression, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %q", expression)
	}
	return prg, nil
}
