package infrastructure

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"pricepoint/internal/service/discount/domain"
)

// yamlDecimal 允许在 yaml 中以数字或字符串书写金额
type yamlDecimal struct {
	decimal.Decimal
}

func (d *yamlDecimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected a number", node.Line)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid decimal %q", node.Line, node.Value)
	}
	d.Decimal = v
	return nil
}

type yamlRule struct {
	ID             string       `yaml:"id"`
	Name           string       `yaml:"name"`
	Enabled        *bool        `yaml:"enabled"` // 省略时视为启用
	Type           string       `yaml:"type"`
	Amount         yamlDecimal  `yaml:"amount"`
	ConditionMin   *yamlDecimal `yaml:"condition_min"`
	ApplyFixedOnce bool         `yaml:"apply_fixed_once"`
}

type yamlBundle struct {
	Value              *yamlRule `yaml:"value"`
	Quantity           *yamlRule `yaml:"quantity"`
	QuantityThreshold  *yamlRule `yaml:"quantity_threshold"`
	UnitPriceThreshold *yamlRule `yaml:"unit_price_threshold"`
}

type yamlScope struct {
	ScopeKey string     `yaml:"scope_key"`
	Active   *bool      `yaml:"active"`
	Rules    yamlBundle `yaml:"rules"`
}

type yamlBuyGet struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Enabled     *bool       `yaml:"enabled"`
	ProductID   string      `yaml:"product_id"`
	BuyQuantity yamlDecimal `yaml:"buy"`
	GetQuantity yamlDecimal `yaml:"get"`
	Type        string      `yaml:"type"`
	Amount      yamlDecimal `yaml:"amount"`
}

type yamlCampaign struct {
	ID                    string       `yaml:"id"`
	Name                  string       `yaml:"name"`
	ValidFrom             time.Time    `yaml:"valid_from"`
	ValidTo               time.Time    `yaml:"valid_to"`
	Active                *bool        `yaml:"active"`
	Default               bool         `yaml:"default"`
	OneTimePerTransaction bool         `yaml:"one_time_per_transaction"`
	Eligibility           string       `yaml:"eligibility"`
	Defaults              yamlBundle   `yaml:"defaults"`
	ProductConfigurations []yamlScope  `yaml:"products"`
	BatchConfigurations   []yamlScope  `yaml:"batches"`
	BuyGetRules           []yamlBuyGet `yaml:"buy_get"`
	CartPriceRule         *yamlRule    `yaml:"cart_price"`
	CartQuantityRule      *yamlRule    `yaml:"cart_quantity"`
}

type yamlCatalog struct {
	Campaigns []yamlCampaign `yaml:"campaigns"`
}

// LoadCatalog 解析 yaml 活动目录。只做结构解析, 业务校验由调用方完成。
func LoadCatalog(r io.Reader) ([]*domain.Campaign, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var catalog yamlCatalog
	if err := dec.Decode(&catalog); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "parse campaign catalog")
	}

	campaigns := make([]*domain.Campaign, 0, len(catalog.Campaigns))
	for _, yc := range catalog.Campaigns {
		campaigns = append(campaigns, yc.toDomain())
	}
	return campaigns, nil
}

func LoadCatalogFile(path string) ([]*domain.Campaign, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", path)
	}
	defer f.Close()
	campaigns, err := LoadCatalog(f)
	return campaigns, errors.Wrap(err, path)
}

func (yc yamlCampaign) toDomain() *domain.Campaign {
	c := &domain.Campaign{
		ID:                      yc.ID,
		Name:                    yc.Name,
		ValidFrom:               yc.ValidFrom,
		ValidTo:                 yc.ValidTo,
		IsActive:                enabled(yc.Active),
		IsDefault:               yc.Default,
		IsOneTimePerTransaction: yc.OneTimePerTransaction,
		Eligibility:             yc.Eligibility,
		Defaults:                yc.Defaults.toDomain(),
		CartPriceRule:           yc.CartPriceRule.toDomain(),
		CartQuantityRule:        yc.CartQuantityRule.toDomain(),
	}
	for _, s := range yc.ProductConfigurations {
		c.ProductConfigurations = append(c.ProductConfigurations, s.toDomain())
	}
	for _, s := range yc.BatchConfigurations {
		c.BatchConfigurations = append(c.BatchConfigurations, s.toDomain())
	}
	for _, bg := range yc.BuyGetRules {
		c.BuyGetRules = append(c.BuyGetRules, domain.BuyGetRule{
			ID:          bg.ID,
			Name:        bg.Name,
			IsEnabled:   enabled(bg.Enabled),
			ProductID:   bg.ProductID,
			BuyQuantity: bg.BuyQuantity.Decimal,
			GetQuantity: bg.GetQuantity.Decimal,
			Type:        domain.DiscountType(strings.ToUpper(bg.Type)),
			Amount:      bg.Amount.Decimal,
		})
	}
	return c
}

func (s yamlScope) toDomain() domain.ScopeConfiguration {
	return domain.ScopeConfiguration{ScopeKey: s.ScopeKey, IsActive: enabled(s.Active), Rules: s.Rules.toDomain()}
}

func (b yamlBundle) toDomain() domain.RuleBundle {
	return domain.RuleBundle{
		Value:              b.Value.toDomain(),
		Quantity:           b.Quantity.toDomain(),
		QuantityThreshold:  b.QuantityThreshold.toDomain(),
		UnitPriceThreshold: b.UnitPriceThreshold.toDomain(),
	}
}

func (r *yamlRule) toDomain() *domain.Rule {
	if r == nil {
		return nil
	}
	rule := &domain.Rule{
		ID:             r.ID,
		Name:           r.Name,
		IsEnabled:      enabled(r.Enabled),
		Type:           domain.DiscountType(strings.ToUpper(r.Type)),
		Amount:         r.Amount.Decimal,
		ApplyFixedOnce: r.ApplyFixedOnce,
	}
	if r.ConditionMin != nil {
		rule.ConditionMin = decimal.NewNullDecimal(r.ConditionMin.Decimal)
	}
	return rule
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}
