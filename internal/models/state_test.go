package models

import (
	"errors"
	"testing"
)

func TestQueryState_Apply(t *testing.T) {
	s := NewQueryState("Explain llm")
	next := s.Apply(StateDelta{
		RefinedQuery:    Ptr("Explain large language models"),
		RefinementCount: Ptr(1),
	})
	if s.RefinedQuery != "" || s.RefinementCount != 0 {
		t.Error("Apply must not modify the receiver")
	}
	if next.RefinedQuery != "Explain large language models" || next.RefinementCount != 1 {
		t.Errorf("unexpected state %+v", next)
	}
	if next.OriginalQuery != "Explain llm" {
		t.Error("untouched fields should be carried over")
	}
}

func TestQueryState_EffectiveQuery(t *testing.T) {
	s := NewQueryState("raw")
	if s.EffectiveQuery() != "raw" {
		t.Errorf("got %q", s.EffectiveQuery())
	}
	s = s.Apply(StateDelta{RefinedQuery: Ptr("refined")})
	if s.EffectiveQuery() != "refined" {
		t.Errorf("got %q", s.EffectiveQuery())
	}
}

func TestMerge(t *testing.T) {
	d := Merge(
		StateDelta{RelevanceScore: Ptr(0.2), UsedFallback: Ptr(false)},
		StateDelta{UsedFallback: Ptr(true)},
	)
	if *d.RelevanceScore != 0.2 {
		t.Errorf("score: got %v", *d.RelevanceScore)
	}
	if !*d.UsedFallback {
		t.Error("later delta should win")
	}
	if d.FinalAnswer != nil {
		t.Error("unset fields stay nil")
	}
}

func TestAnswerFromState(t *testing.T) {
	s := QueryState{
		OriginalQuery: "q", RefinedQuery: "rq", RefinementCount: 1,
		RelevanceScore: 0.7, UsedFallback: true, FinalAnswer: "a",
	}
	a := AnswerFromState(s)
	if a.Response != "a" || a.RefinedQuery != "rq" || a.Score != 0.7 || !a.UsedFallback || a.RefinementCount != 1 {
		t.Errorf("unexpected answer %+v", a)
	}
}

func TestWrapError(t *testing.T) {
	base := errors.New("boom")
	err := WrapError(ErrTemporary, "web search", base)
	if !IsKind(err, ErrTemporary) || !errors.Is(err, base) {
		t.Errorf("wrapped error lost its kind or cause: %v", err)
	}
	if WrapError(ErrTemporary, "op", nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestRerankedList_Chunks(t *testing.T) {
	a, b := &Chunk{ID: "a"}, &Chunk{ID: "b"}
	l := RerankedList{{Chunk: b, Score: 2}, {Chunk: a, Score: 1}}
	got := l.Chunks()
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("unexpected chunks %v", got)
	}
}
