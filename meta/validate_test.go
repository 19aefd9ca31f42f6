package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name       string
		rules      *ValidationRules
		value      string
		violations int
	}{
		{"无规则", nil, "anything", 0},
		{"正则匹配", &ValidationRules{Pattern: `[a-z]+\.example\.com`}, "smtp.example.com", 0},
		{"正则不匹配", &ValidationRules{Pattern: `[a-z]+\.example\.com`}, "smtp.other.org", 1},
		{"正则要求完整匹配", &ValidationRules{Pattern: `\d+`}, "12ab", 1},
		{"长度在范围内", &ValidationRules{MinLength: intPtr(2), MaxLength: intPtr(5)}, "abc", 0},
		{"长度过短", &ValidationRules{MinLength: intPtr(4)}, "abc", 1},
		{"长度过长", &ValidationRules{MaxLength: intPtr(2)}, "abc", 1},
		{"数值在范围内", &ValidationRules{Min: floatPtr(1), Max: floatPtr(65535)}, "587", 0},
		{"数值过小", &ValidationRules{Min: floatPtr(1024)}, "80", 1},
		{"数值过大", &ValidationRules{Max: floatPtr(100)}, "200", 1},
		{"非数字触发数值规则", &ValidationRules{Min: floatPtr(0)}, "not-a-number", 1},
		{"枚举命中", &ValidationRules{Options: []string{"tls", "ssl", "none"}}, "tls", 0},
		{"枚举未命中", &ValidationRules{Options: []string{"tls", "ssl"}}, "plain", 1},
		{"多条违规叠加", &ValidationRules{Pattern: `\d+`, MinLength: intPtr(10)}, "abc", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.rules, tt.value)
			assert.Len(t, got, tt.violations)
		})
	}
}

func TestValidateValueRequired(t *testing.T) {
	m := &ConfigMeta{Category: "smtp", Key: "host", IsRequired: true}
	assert.ErrorIs(t, m.ValidateValue(""), ErrValidation)
	assert.NoError(t, m.ValidateValue("smtp.example.com"))
}

func TestValidateValueSkipsRulesWhenEmpty(t *testing.T) {
	// 非必填的空值不触发规则检查
	m := &ConfigMeta{
		Category:        "smtp",
		Key:             "reply_to",
		ValidationRules: &ValidationRules{MinLength: intPtr(5)},
	}
	assert.NoError(t, m.ValidateValue(""))
	assert.ErrorIs(t, m.ValidateValue("a"), ErrValidation)
}
