package ruleengine

import "nexuschain/nexus/platform"

// Engine is a chain-of-responsibility over an ordered rule list. Evaluation
// stops at the first rule that returns a match; DefaultRule guarantees the
// chain always terminates with an action.
type Engine struct {
	rules []Rule
}

// NewEngine constructs the engine with the built-in rule ordering:
// join handling, then commands, then the link filter, then the
// terminal default.
func NewEngine() *Engine {
	return &Engine{rules: []Rule{
		JoinRequestRule{},
		CommandRule{},
		LinkFilterRule{},
		DefaultRule{},
	}}
}

// NewEngineWithRules builds an engine from a caller-supplied rule chain,
// useful for tests and for runtime operators adding custom rules ahead of
// the built-ins.
func NewEngineWithRules(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Evaluate runs the rule chain and always returns a non-nil action: the
// terminal DefaultRule guarantees totality even for an empty chain, as long
// as it (or an equivalent terminal rule) is present.
func (e *Engine) Evaluate(ctx RuleContext) *platform.RuleAction {
	for _, rule := range e.rules {
		if action, matched := rule.Evaluate(ctx); matched {
			return action
		}
	}
	return &platform.RuleAction{Kind: platform.ActionNone, Reason: "no_rule_matched"}
}
