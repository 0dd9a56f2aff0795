// Package ruleengine evaluates a normalized platform event against a group's
// configuration and produces an action proposal. The engine is a pure,
// synchronous function of (event, config): it performs no I/O, which is what
// lets independent consensus nodes agree on its output deterministically
//.
package ruleengine

import "nexuschain/nexus/platform"

// JoinPolicy controls how a group handles join requests.
type JoinPolicy string

const (
	JoinPolicyAutoApprove     JoinPolicy = "auto_approve"
	JoinPolicyManualApproval  JoinPolicy = "manual_approval"
	JoinPolicyCaptchaRequired JoinPolicy = "captcha_required"
	JoinPolicyTokenGating     JoinPolicy = "token_gating"
)

// GroupConfig is the resolved on-chain-cached configuration for one group.
type GroupConfig struct {
	GroupID           string
	JoinPolicy        JoinPolicy
	TokenGateMinStake uint64 // only meaningful when JoinPolicy == TokenGating
	FilterLinks       bool
	DefaultMuteSecs   int64
}

// DefaultGroupConfig returns the configuration applied when no on-chain
// config has been resolved for a group: auto-approve joins, no link filter.
func DefaultGroupConfig(groupID string) GroupConfig {
	return GroupConfig{GroupID: groupID, JoinPolicy: JoinPolicyAutoApprove}
}

// RuleContext bundles the normalized event with its resolved group config,
// the sole input the rule chain observes.
type RuleContext struct {
	Event  *platform.NormalizedEvent
	Config GroupConfig
}

// Rule inspects a RuleContext and either produces an action or defers to the
// next rule in the chain by returning (nil, false).
type Rule interface {
	Evaluate(ctx RuleContext) (*platform.RuleAction, bool)
}
