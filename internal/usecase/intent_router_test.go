package usecase_test

import (
	"context"
	"testing"

	"campus-compass/internal/domain"
	"campus-compass/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newRouterWithMocks(t *testing.T) (*usecase.IntentRouter, *mockRetrieveUsecase, *mockAnswerUsecase) {
	t.Helper()
	retrieve := new(mockRetrieveUsecase)
	rag := new(mockAnswerUsecase)
	citations, err := usecase.NewCitationManager(usecase.DefaultCitationConfig())
	assert.NoError(t, err)
	builder, err := usecase.NewPromptBuilder(usecase.DefaultContextBudget(), citations)
	assert.NoError(t, err)
	handlers := usecase.NewFunctionHandlers(retrieve, rag, builder, citations, usecase.DefaultAnswerConfig())
	return usecase.NewIntentRouter(handlers, rag), retrieve, rag
}

func TestClassify_IntentPrecedence(t *testing.T) {
	router, _, _ := newRouterWithMocks(t)

	tests := []struct {
		name   string
		query  string
		intent domain.IntentType
	}{
		{
			name:   "comparison beats summary and search",
			query:  "What is the difference between the hostel policy and the library policy?",
			intent: domain.IntentPolicyComparison,
		},
		{
			name:   "comparison wins even for fee subjects",
			query:  "Compare B.Tech and M.Tech fee structures",
			intent: domain.IntentPolicyComparison,
		},
		{
			name:   "summary beats policy search",
			query:  "Summarize the attendance policy",
			intent: domain.IntentPolicySummary,
		},
		{
			name:   "fee beats calendar despite deadline",
			query:  "fee payment deadline",
			intent: domain.IntentFeeQuery,
		},
		{
			name:   "calendar",
			query:  "When is the exam registration?",
			intent: domain.IntentCalendarQuery,
		},
		{
			name:   "policy search",
			query:  "What are the library rules?",
			intent: domain.IntentPolicySearch,
		},
		{
			name:   "general fallthrough",
			query:  "Who is the dean of student affairs?",
			intent: domain.IntentGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := router.Classify(tt.query)
			assert.Equal(t, tt.intent, cls.Intent)
		})
	}
}

func TestClassify_ComparisonExtractsBothPolicyNames(t *testing.T) {
	router, _, _ := newRouterWithMocks(t)

	cls := router.Classify("Compare the library policy and the hostel policy")
	assert.Equal(t, domain.IntentPolicyComparison, cls.Intent)
	assert.Equal(t, "library", cls.Parameters["policy1"])
	assert.Equal(t, "hostel", cls.Parameters["policy2"])
}

func TestClassify_ComparisonWithoutPolicyNames(t *testing.T) {
	router, _, _ := newRouterWithMocks(t)

	cls := router.Classify("Compare B.Tech and M.Tech fee structures")
	assert.Equal(t, domain.IntentPolicyComparison, cls.Intent)
	assert.Empty(t, cls.Parameters["policy1"])
	assert.Empty(t, cls.Parameters["policy2"])
}

func TestClassify_SummaryExtractsPolicyName(t *testing.T) {
	router, _, _ := newRouterWithMocks(t)

	cls := router.Classify("Summarize the attendance policy")
	assert.Equal(t, "attendance", cls.Parameters["policy_name"])
}

func TestClassify_FeeExtractsProgramAndSemester(t *testing.T) {
	router, _, _ := newRouterWithMocks(t)

	cls := router.Classify("How much is the tuition fee for B.Tech semester 2?")
	assert.Equal(t, domain.IntentFeeQuery, cls.Intent)
	assert.Equal(t, "b.tech", cls.Parameters["program"])
	assert.Equal(t, "2", cls.Parameters["semester"])
}

func TestClassify_CalendarExtractsEventTypeAndDateRange(t *testing.T) {
	router, _, _ := newRouterWithMocks(t)

	cls := router.Classify("When does registration open for 2024-2025?")
	assert.Equal(t, domain.IntentCalendarQuery, cls.Intent)
	assert.Equal(t, "registration", cls.Parameters["event_type"])
	assert.Equal(t, "2024-2025", cls.Parameters["date_range"])
}

func TestClassify_PolicySearchExtractsPolicyType(t *testing.T) {
	router, _, _ := newRouterWithMocks(t)

	cls := router.Classify("What are the hostel rules?")
	assert.Equal(t, domain.IntentPolicySearch, cls.Intent)
	assert.Equal(t, "hostel", cls.Parameters["policy_type"])
	assert.Equal(t, "What are the hostel rules?", cls.Parameters["query"])
}

func TestRoute_GeneralGoesToRAG(t *testing.T) {
	router, _, rag := newRouterWithMocks(t)

	rag.On("Query", mock.Anything, usecase.AnswerInput{Question: "Who is the dean?"}).Return(&usecase.AnswerOutput{
		Answer:        "The dean is Dr. Sharma.",
		IsGrounded:    true,
		RetrievedDocs: 3,
	}, nil)

	resp := router.Route(context.Background(), "Who is the dean?")
	assert.Equal(t, domain.IntentGeneral, resp.Intent)
	assert.False(t, resp.UsedFunction)
	assert.Equal(t, "The dean is Dr. Sharma.", resp.Answer)
	assert.True(t, resp.IsGrounded)
	assert.Equal(t, 3, resp.RetrievedDocs)
	assert.Empty(t, resp.Error)
}

func TestRoute_ComparisonWithoutNamesFallsBackToRAG(t *testing.T) {
	router, _, rag := newRouterWithMocks(t)

	query := "Compare B.Tech and M.Tech fee structures"
	rag.On("Query", mock.Anything, usecase.AnswerInput{Question: query}).Return(&usecase.AnswerOutput{
		Answer: "B.Tech fees are lower than M.Tech fees.",
	}, nil)

	resp := router.Route(context.Background(), query)
	assert.Equal(t, domain.IntentPolicyComparison, resp.Intent)
	assert.True(t, resp.UsedFunction)
	assert.Equal(t, "compare_policies", resp.Function)
	assert.Equal(t, "B.Tech fees are lower than M.Tech fees.", resp.Answer)
}

func TestRoute_FailureYieldsStructuredError(t *testing.T) {
	router, retrieve, rag := newRouterWithMocks(t)

	retrieve.On("Search", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	rag.On("Query", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	resp := router.Route(context.Background(), "What are the hostel rules?")
	assert.Equal(t, domain.IntentPolicySearch, resp.Intent)
	assert.NotEmpty(t, resp.Error)
}
