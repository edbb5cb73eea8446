package domain

// IntentType is the classified purpose of a query. It selects which
// handler answers it.
type IntentType string

const (
	IntentPolicySearch     IntentType = "policy_search"
	IntentFeeQuery         IntentType = "fee_query"
	IntentCalendarQuery    IntentType = "calendar_query"
	IntentPolicySummary    IntentType = "policy_summary"
	IntentPolicyComparison IntentType = "policy_comparison"
	IntentGeneral          IntentType = "general"
)

// IntentClassification is the single-shot result of intent detection.
// Parameters are extracted best-effort; a handler must tolerate missing
// keys and fall back to an unfiltered search.
type IntentClassification struct {
	Intent     IntentType
	Parameters map[string]string
}
