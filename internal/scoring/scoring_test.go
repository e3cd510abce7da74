package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperjump/kotae/internal/llm"
)

type fakeClient struct {
	result llm.Result
	err    error
	calls  int
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (llm.Result, error) {
	return f.CompleteStructured(ctx, prompt, llm.Schema{})
}

func (f *fakeClient) CompleteStructured(context.Context, string, llm.Schema) (llm.Result, error) {
	f.calls++
	return f.result, f.err
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{0.8, 0.8, true},
		{float32(0.5), 0.5, true},
		{1, 1, true},
		{json.Number("0.3"), 0.3, true},
		{"0.75", 0.75, true},
		{"Score: 0.8/1", 0.8, true},
		{"8/10", 0.8, true},
		{"Relevance: 7 / 10", 0.7, true},
		{"4 out of 5", 0.8, true},
		{"12/10", 1, true},
		{"3/0", 1, true},
		{"  .6 ", 0.6, true},
		{"1.7", 1, true},
		{-0.2, 0, true},
		{"high", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{[]int{1}, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseScore(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseScore(%#v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestScore(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		client *fakeClient
		want   float64
	}{
		{"map number", &fakeClient{result: llm.MapResult{Values: map[string]any{"score": json.Number("0.9")}}}, 0.9},
		{"map string", &fakeClient{result: llm.MapResult{Values: map[string]any{"score": "0.4"}}}, 0.4},
		{"raw text", &fakeClient{result: llm.RawResult{Text: "Relevance: 0.7"}}, 0.7},
		{"unparseable", &fakeClient{result: llm.RawResult{Text: "quite relevant"}}, 0},
		{"missing field", &fakeClient{result: llm.MapResult{Values: map[string]any{}}}, 0},
		{"error", &fakeClient{err: errors.New("boom")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.client, nil).Score(ctx, "q", "some text"); got != tt.want {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_EmptyTextSkipsModel(t *testing.T) {
	client := &fakeClient{result: llm.RawResult{Text: "1"}}
	if got := New(client, nil).Score(context.Background(), "q", "  "); got != 0 {
		t.Errorf("Score = %v, want 0", got)
	}
	if client.calls != 0 {
		t.Errorf("model called %d times for empty text", client.calls)
	}
}
