package testutil

import "github.com/Veraticus/glrules/internal/model"

// RuleBuilder builds rules for tests with a fluent API.
type RuleBuilder struct {
	rule model.Rule
}

// NewRule starts an active rule for the owner with a placeholder GL code.
func NewRule(ownerID string) *RuleBuilder {
	return &RuleBuilder{rule: model.Rule{
		OwnerID:  ownerID,
		Name:     "test rule",
		IsActive: true,
		Action:   model.Action{GLCode: "6000-100"},
	}}
}

// Named sets the rule name.
func (b *RuleBuilder) Named(name string) *RuleBuilder {
	b.rule.Name = name
	return b
}

// WithGLCode sets the suggested GL code.
func (b *RuleBuilder) WithGLCode(code string) *RuleBuilder {
	b.rule.Action.GLCode = code
	return b
}

// WithVendor adds vendor patterns.
func (b *RuleBuilder) WithVendor(patterns ...string) *RuleBuilder {
	b.rule.Conditions.VendorPatterns = append(b.rule.Conditions.VendorPatterns, patterns...)
	return b
}

// WithKeywords adds required keywords.
func (b *RuleBuilder) WithKeywords(keywords ...string) *RuleBuilder {
	b.rule.Conditions.Keywords = append(b.rule.Conditions.Keywords, keywords...)
	return b
}

// WithExactDescriptions adds exact description matches.
func (b *RuleBuilder) WithExactDescriptions(descriptions ...string) *RuleBuilder {
	b.rule.Conditions.ExactDescriptions = append(b.rule.Conditions.ExactDescriptions, descriptions...)
	return b
}

// Excluding adds veto keywords.
func (b *RuleBuilder) Excluding(keywords ...string) *RuleBuilder {
	b.rule.Conditions.ExcludeKeywords = append(b.rule.Conditions.ExcludeKeywords, keywords...)
	return b
}

// WithAmountRange sets an inclusive amount range.
func (b *RuleBuilder) WithAmountRange(minAmount, maxAmount float64) *RuleBuilder {
	b.rule.Conditions.AmountRange = &model.AmountRange{Min: &minAmount, Max: &maxAmount}
	return b
}

// AutoAssign marks the rule as auto-applicable at the given threshold.
func (b *RuleBuilder) AutoAssign(threshold float64) *RuleBuilder {
	b.rule.Action.AutoAssign = true
	b.rule.Action.ConfidenceThreshold = threshold
	return b
}

// OverrideAI lets the rule win over AI suggestions at any confidence.
func (b *RuleBuilder) OverrideAI() *RuleBuilder {
	b.rule.Action.OverrideAI = true
	return b
}

// WithPriority sets the tie-break priority.
func (b *RuleBuilder) WithPriority(p int) *RuleBuilder {
	b.rule.Priority = p
	return b
}

// Inactive disables the rule.
func (b *RuleBuilder) Inactive() *RuleBuilder {
	b.rule.IsActive = false
	return b
}

// Build returns a copy of the rule.
func (b *RuleBuilder) Build() model.Rule {
	r := b.rule
	r.Conditions.VendorPatterns = append([]string(nil), r.Conditions.VendorPatterns...)
	r.Conditions.Keywords = append([]string(nil), r.Conditions.Keywords...)
	r.Conditions.ExactDescriptions = append([]string(nil), r.Conditions.ExactDescriptions...)
	r.Conditions.ExcludeKeywords = append([]string(nil), r.Conditions.ExcludeKeywords...)
	return r
}
