package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrNoDefaultCampaign    = errors.New("no active default campaign")
	ErrDuplicateScopeKey    = errors.New("duplicate scope key within tier")
	ErrInvalidConfiguration = errors.New("invalid discount configuration")
)

// Violation 是一条配置校验失败记录。Path 指向出错的字段, 例如 "product_configurations[2].rules.value.amount"。
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ConfigurationError 表示活动或购物车数据不合法, 评估不会继续。
type ConfigurationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Path, v.Message))
	}
	return "invalid discount configuration: " + strings.Join(parts, "; ")
}

// Is 使 errors.Is(err, ErrInvalidConfiguration) 对所有 ConfigurationError 成立。
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// Add 追加一条违规记录。
func (e *ConfigurationError) Add(path, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Merge 合并另一个错误中的违规记录。
func (e *ConfigurationError) Merge(other *ConfigurationError) {
	if other != nil {
		e.Violations = append(e.Violations, other.Violations...)
	}
}

// OrNil 在没有违规时返回 nil, 避免返回带类型的 nil 接口。
func (e *ConfigurationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}
