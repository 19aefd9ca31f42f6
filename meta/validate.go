package meta

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/ceyewan/confhub/xerrors"
)

// Validate 用规则集校验候选值，返回所有违规描述。
// 纯函数，写入路径和消费方的表单校验共用。
func Validate(rules *ValidationRules, value string) []string {
	if rules == nil {
		return nil
	}

	var violations []string

	if rules.Pattern != "" {
		re, err := regexp.Compile("^(?:" + rules.Pattern + ")$")
		if err != nil {
			violations = append(violations, fmt.Sprintf("invalid pattern %q: %v", rules.Pattern, err))
		} else if !re.MatchString(value) {
			violations = append(violations, fmt.Sprintf("value does not match pattern %q", rules.Pattern))
		}
	}

	length := len([]rune(value))
	if rules.MinLength != nil && length < *rules.MinLength {
		violations = append(violations, fmt.Sprintf("length %d is less than minimum %d", length, *rules.MinLength))
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		violations = append(violations, fmt.Sprintf("length %d exceeds maximum %d", length, *rules.MaxLength))
	}

	if rules.Min != nil || rules.Max != nil {
		if num, err := strconv.ParseFloat(value, 64); err != nil {
			violations = append(violations, fmt.Sprintf("value %q is not a number", value))
		} else {
			if rules.Min != nil && num < *rules.Min {
				violations = append(violations, fmt.Sprintf("value %v is less than minimum %v", num, *rules.Min))
			}
			if rules.Max != nil && num > *rules.Max {
				violations = append(violations, fmt.Sprintf("value %v exceeds maximum %v", num, *rules.Max))
			}
		}
	}

	if len(rules.Options) > 0 {
		found := false
		for _, opt := range rules.Options {
			if value == opt {
				found = true
				break
			}
		}
		if !found {
			violations = append(violations, fmt.Sprintf("value %q is not one of the allowed options", value))
		}
	}

	return violations
}

// ValidateValue 按元数据校验候选值，包含必填检查。
// 有违规时返回包含全部违规描述的 ErrValidation。
func (m *ConfigMeta) ValidateValue(value string) error {
	var violations []string
	if m.IsRequired && value == "" {
		violations = append(violations, "value is required")
	}
	if value != "" {
		violations = append(violations, Validate(m.ValidationRules, value)...)
	}
	if len(violations) == 0 {
		return nil
	}
	return xerrors.Wrapf(ErrValidation, "%s.%s: %v", m.Category, m.Key, violations)
}
