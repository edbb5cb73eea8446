package usecase

import (
	"context"
	"regexp"
	"strings"

	"campus-compass/internal/domain"
)

// Pattern lists per intent, checked in precedence order. The first intent
// with any match wins; parameter extraction never changes the winner.
var (
	comparisonPatterns = compilePatterns(
		`compare|comparison|difference|differences|\bvs\b|versus`,
		`which.*better|what.*difference.*between`,
	)
	summaryPatterns = compilePatterns(
		`summarize|summary|overview|\bbrief\b|tl;dr|tldr`,
		`what.*policy.*about|explain.*policy`,
	)
	feePatterns = compilePatterns(
		`\bfees?\b|payment|tuition|\bcost\b|price`,
		`how much|what.*fee|fee structure`,
	)
	calendarPatterns = compilePatterns(
		`calendar|schedule|\bdates?\b|deadline|\bwhen\b`,
		`academic calendar|exam.*date|registration.*date`,
	)
	policySearchPatterns = compilePatterns(
		`polic(?:y|ies)|regulations?|\brules?\b`,
		`what.*policy|search.*policy|find.*policy`,
	)
)

// Parameter sub-patterns, applied best-effort after the intent is fixed.
var (
	policyNamePattern  = regexp.MustCompile(`(\w+)\s+polic(?:y|ies)`)
	summaryNamePattern = regexp.MustCompile(`(?:summarize|summary|overview)(?:\s+(?:of|for|the))*\s+([\w\s]+?)(?:\s+polic(?:y|ies))?\s*$`)
	programPattern     = regexp.MustCompile(`(b\.?\s?tech|m\.?\s?tech|phd|mba)`)
	semesterPattern    = regexp.MustCompile(`semester\s+(\d+|one|two|three|four|first|second|third|fourth)`)
	dateRangePattern   = regexp.MustCompile(`(\d{4}[-/]\d{4}|\d{4})`)
)

var calendarEventTypes = []string{"registration", "examination", "exam", "holiday", "vacation", "deadline"}

var policyTypes = []string{"academic", "hostel", "library", "examination", "admission"}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		patterns[i] = regexp.MustCompile(expr)
	}
	return patterns
}

func anyMatch(patterns []*regexp.Regexp, query string) bool {
	for _, p := range patterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

// RouteResponse is the routed result returned to API clients. Error is a
// structured field; routing never surfaces an unhandled fault.
type RouteResponse struct {
	Intent        domain.IntentType
	Parameters    map[string]string
	UsedFunction  bool
	Function      string
	Answer        string
	Citations     []domain.Citation
	IsGrounded    bool
	RetrievedDocs int
	Query         string
	Error         string
}

// IntentRouter classifies queries and dispatches them to the structured
// handlers or the general RAG engine.
type IntentRouter struct {
	handlers *FunctionHandlers
	rag      AnswerWithRAGUsecase
}

// NewIntentRouter creates an IntentRouter.
func NewIntentRouter(handlers *FunctionHandlers, rag AnswerWithRAGUsecase) *IntentRouter {
	return &IntentRouter{handlers: handlers, rag: rag}
}

// Classify runs the intent cascade over the query. Precedence is fixed:
// comparison, summary, fee, calendar, policy search, general. Parameters
// are extracted best-effort; missing ones are simply absent from the map.
func (r *IntentRouter) Classify(query string) domain.IntentClassification {
	lower := strings.ToLower(query)

	switch {
	case anyMatch(comparisonPatterns, lower):
		params := map[string]string{}
		names := policyNamePattern.FindAllStringSubmatch(lower, -1)
		if len(names) >= 2 {
			params["policy1"] = strings.TrimSpace(names[0][1])
			params["policy2"] = strings.TrimSpace(names[1][1])
		}
		return domain.IntentClassification{Intent: domain.IntentPolicyComparison, Parameters: params}

	case anyMatch(summaryPatterns, lower):
		params := map[string]string{}
		if match := summaryNamePattern.FindStringSubmatch(lower); match != nil {
			params["policy_name"] = strings.TrimSpace(match[1])
		}
		return domain.IntentClassification{Intent: domain.IntentPolicySummary, Parameters: params}

	case anyMatch(feePatterns, lower):
		params := map[string]string{}
		if match := programPattern.FindStringSubmatch(lower); match != nil {
			params["program"] = match[1]
		}
		if match := semesterPattern.FindStringSubmatch(lower); match != nil {
			params["semester"] = match[1]
		}
		return domain.IntentClassification{Intent: domain.IntentFeeQuery, Parameters: params}

	case anyMatch(calendarPatterns, lower):
		params := map[string]string{}
		for _, eventType := range calendarEventTypes {
			if strings.Contains(lower, eventType) {
				params["event_type"] = eventType
				break
			}
		}
		if match := dateRangePattern.FindStringSubmatch(lower); match != nil {
			params["date_range"] = match[1]
		}
		return domain.IntentClassification{Intent: domain.IntentCalendarQuery, Parameters: params}

	case anyMatch(policySearchPatterns, lower):
		params := map[string]string{"query": query}
		for _, policyType := range policyTypes {
			if strings.Contains(lower, policyType) {
				params["policy_type"] = policyType
				break
			}
		}
		return domain.IntentClassification{Intent: domain.IntentPolicySearch, Parameters: params}
	}

	return domain.IntentClassification{Intent: domain.IntentGeneral, Parameters: map[string]string{}}
}

// Route classifies the query and dispatches it. Every failure path still
// yields a well-formed response with the Error field set.
func (r *IntentRouter) Route(ctx context.Context, query string) *RouteResponse {
	cls := r.Classify(query)
	resp := &RouteResponse{
		Intent:     cls.Intent,
		Parameters: cls.Parameters,
		Query:      query,
	}

	var result *HandlerResult
	var err error

	switch cls.Intent {
	case domain.IntentPolicySearch:
		result, err = r.handlers.SearchPolicies(ctx, query, cls.Parameters["policy_type"])
	case domain.IntentFeeQuery:
		result, err = r.handlers.GetFeeStructure(ctx, query, cls.Parameters["program"], cls.Parameters["semester"])
	case domain.IntentCalendarQuery:
		result, err = r.handlers.GetAcademicCalendar(ctx, query, cls.Parameters["event_type"], cls.Parameters["date_range"])
	case domain.IntentPolicySummary:
		result, err = r.handlers.SummarizePolicy(ctx, query, cls.Parameters["policy_name"])
	case domain.IntentPolicyComparison:
		result, err = r.handlers.ComparePolicies(ctx, query, cls.Parameters["policy1"], cls.Parameters["policy2"])
	default:
		answer, ragErr := r.rag.Query(ctx, AnswerInput{Question: query})
		if ragErr != nil {
			resp.Error = ragErr.Error()
			return resp
		}
		resp.Answer = answer.Answer
		resp.Citations = answer.Citations
		resp.IsGrounded = answer.IsGrounded
		resp.RetrievedDocs = answer.RetrievedDocs
		if answer.Error != "" {
			resp.Error = answer.Error
		}
		return resp
	}

	resp.UsedFunction = true
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	resp.Function = result.Function
	resp.Answer = result.Answer
	resp.Citations = result.Citations
	resp.IsGrounded = result.IsGrounded
	resp.RetrievedDocs = result.RetrievedDocs
	if result.Error != "" {
		resp.Error = result.Error
	}
	return resp
}
