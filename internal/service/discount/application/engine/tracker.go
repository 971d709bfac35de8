package engine

// OneTimeTracker 实现"整单仅生效一次": 记录本次评估中已经计入过的规则标识。
// 只在活动设置了 IsOneTimePerTransaction 时生效; 手工覆盖和整单规则不经过它。
type OneTimeTracker struct {
	enabled bool
	applied map[string]struct{}
}

func NewOneTimeTracker(enabled bool) *OneTimeTracker {
	return &OneTimeTracker{enabled: enabled, applied: make(map[string]struct{})}
}

// Active 报告跟踪是否生效。
func (t *OneTimeTracker) Active() bool {
	return t != nil && t.enabled
}

// Claim 登记 ruleKey 的一次合格出现。返回 false 表示该规则已在购物车更靠前的行计入过。
// 跟踪未生效时总是返回 true。
func (t *OneTimeTracker) Claim(ruleKey string) bool {
	if !t.Active() {
		return true
	}
	if _, seen := t.applied[ruleKey]; seen {
		return false
	}
	t.applied[ruleKey] = struct{}{}
	return true
}

// Claimed 报告 ruleKey 是否已经计入过, 不做登记。
func (t *OneTimeTracker) Claimed(ruleKey string) bool {
	if !t.Active() {
		return false
	}
	_, seen := t.applied[ruleKey]
	return seen
}

// Len 是已计入的规则数量。
func (t *OneTimeTracker) Len() int {
	if t == nil {
		return 0
	}
	return len(t.applied)
}
