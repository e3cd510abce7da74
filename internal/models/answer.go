package models

// Answer is the result of one answer request.
type Answer struct {
	Response        string  `json:"response"`
	RefinedQuery    string  `json:"refined_query"`
	Score           float64 `json:"score"`
	UsedFallback    bool    `json:"used_fallback"`
	Degraded        bool    `json:"degraded,omitempty"`
	RefinementCount int     `json:"refinement_count"`
	QueryTime       int64   `json:"query_time_ms"`
}

// AnswerFromState builds the response object from a finished state.
func AnswerFromState(s QueryState) *Answer {
	return &Answer{
		Response:        s.FinalAnswer,
		RefinedQuery:    s.RefinedQuery,
		Score:           s.RelevanceScore,
		UsedFallback:    s.UsedFallback,
		Degraded:        s.Degraded,
		RefinementCount: s.RefinementCount,
	}
}

// AnswerRequest is the request body for an answer call.
type AnswerRequest struct {
	Query string `json:"query"`
}
