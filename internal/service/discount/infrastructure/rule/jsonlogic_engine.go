package rule

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/pkg/errors"

	"pricepoint/internal/service/discount/domain"
)

// JSONLogicRuleEngine 以 JSON Logic 文档作为资格表达式, 变量与 CELRuleEngine 相同。
// 例如: {"and":[{">=":[{"var":"subtotal"},200]},{"in":["sku-42",{"var":"products"}]}]}
type JSONLogicRuleEngine struct{}

func NewJSONLogicRuleEngine() *JSONLogicRuleEngine {
	return &JSONLogicRuleEngine{}
}

func (e *JSONLogicRuleEngine) Compile(expression string) error {
	if !json.Valid([]byte(expression)) {
		return errors.Errorf("expression %q is not valid JSON", expression)
	}
	if !jsonlogic.IsValid(strings.NewReader(expression)) {
		return errors.Errorf("expression %q is not valid JSON Logic", expression)
	}
	return nil
}

func (e *JSONLogicRuleEngine) Evaluate(expression string, fact domain.Fact) (bool, error) {
	if err := e.Compile(expression); err != nil {
		return false, err
	}
	data, err := json.Marshal(map[string]any{
		"subtotal": fact.Subtotal,
		"quantity": fact.Quantity,
		"lines":    fact.Lines,
		"products": nonNil(fact.Products),
		"batches":  nonNil(fact.Batches),
	})
	if err != nil {
		return false, errors.Wrap(err, "encode fact")
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expression), bytes.NewReader(data), &out); err != nil {
		return false, errors.Wrapf(err, "evaluate %q", expression)
	}
	var result any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &result); err != nil {
		return false, errors.Wrapf(err, "decode result of %q", expression)
	}
	b, ok := result.(bool)
	if !ok {
		return false, errors.Errorf("expression %q returned %T, want bool", expression, result)
	}
	return b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// New 按名称创建资格表达式引擎, 空名称使用 cel
func New(kind string) (domain.RuleEngine, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "cel":
		return NewCELRuleEngine()
	case "jsonlogic":
		return NewJSONLogicRuleEngine(), nil
	default:
		return nil, errors.Errorf("unknown rule engine %q", kind)
	}
}
