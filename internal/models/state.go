package models

// QueryState is the per-request record threaded through the answer pipeline.
// Stages never mutate it; they return a StateDelta which the pipeline applies.
type QueryState struct {
	OriginalQuery    string
	RefinedQuery     string
	RefinementCount  int
	RelevanceScore   float64
	RetrievedContext string
	UsedFallback     bool
	Degraded         bool
	FinalAnswer      string
}

// NewQueryState returns a fresh state for query.
func NewQueryState(query string) QueryState {
	return QueryState{OriginalQuery: query}
}

// StateDelta carries the fields a stage changed. Nil fields are left untouched.
type StateDelta struct {
	RefinedQuery     *string
	RefinementCount  *int
	RelevanceScore   *float64
	RetrievedContext *string
	UsedFallback     *bool
	Degraded         *bool
	FinalAnswer      *string
}

// Apply returns a copy of s with the non-nil fields of d applied.
func (s QueryState) Apply(d StateDelta) QueryState {
	if d.RefinedQuery != nil {
		s.RefinedQuery = *d.RefinedQuery
	}
	if d.RefinementCount != nil {
		s.RefinementCount = *d.RefinementCount
	}
	if d.RelevanceScore != nil {
		s.RelevanceScore = *d.RelevanceScore
	}
	if d.RetrievedContext != nil {
		s.RetrievedContext = *d.RetrievedContext
	}
	if d.UsedFallback != nil {
		s.UsedFallback = *d.UsedFallback
	}
	if d.Degraded != nil {
		s.Degraded = *d.Degraded
	}
	if d.FinalAnswer != nil {
		s.FinalAnswer = *d.FinalAnswer
	}
	return s
}

// EffectiveQuery is the refined query when one exists, otherwise the original.
func (s QueryState) EffectiveQuery() string {
	if s.RefinedQuery != "" {
		return s.RefinedQuery
	}
	return s.OriginalQuery
}

// Merge combines deltas left to right; later non-nil fields win.
func Merge(deltas ...StateDelta) StateDelta {
	var out StateDelta
	for _, d := range deltas {
		if d.RefinedQuery != nil {
			out.RefinedQuery = d.RefinedQuery
		}
		if d.RefinementCount != nil {
			out.RefinementCount = d.RefinementCount
		}
		if d.RelevanceScore != nil {
			out.RelevanceScore = d.RelevanceScore
		}
		if d.RetrievedContext != nil {
			out.RetrievedContext = d.RetrievedContext
		}
		if d.UsedFallback != nil {
			out.UsedFallback = d.UsedFallback
		}
		if d.Degraded != nil {
			out.Degraded = d.Degraded
		}
		if d.FinalAnswer != nil {
			out.FinalAnswer = d.FinalAnswer
		}
	}
	return out
}

// Ptr returns a pointer to v. Used to build deltas.
func Ptr[T any](v T) *T {
	return &v
}
