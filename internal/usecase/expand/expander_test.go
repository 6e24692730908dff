package expand

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeLLM struct {
	terms []string
	err   error
	calls int
}

func (f *fakeLLM) ExpandTerms(context.Context, string) ([]string, error) {
	f.calls++
	return f.terms, f.err
}

func newExpander(t *testing.T, max int, llm LLMExpander) *Expander {
	t.Helper()
	e, err := New("", max, llm, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestExpand_OriginalAlwaysFirst(t *testing.T) {
	e := newExpander(t, 3, nil)
	got := e.Expand(context.Background(), "valve maintenance")
	if len(got) == 0 || got[0] != "valve maintenance" {
		t.Fatalf("original query must lead the variants, got %v", got)
	}
	if len(got) < 2 {
		t.Errorf("matched terms must produce variants, got %v", got)
	}
	if len(got) > 4 {
		t.Errorf("at most 3 expansions allowed, got %d variants", len(got)-1)
	}
}

func TestExpand_AppendsSynonymsCaseInsensitively(t *testing.T) {
	e := newExpander(t, 3, nil)
	got := e.Expand(context.Background(), "VALVE check")

	found := false
	for _, v := range got[1:] {
		if strings.Contains(v, "gate") {
			found = true
		}
		if !strings.HasPrefix(v, "VALVE check") {
			t.Errorf("variants must keep the original query intact, got %q", v)
		}
	}
	if !found {
		t.Errorf("expected a gate variant for VALVE, got %v", got)
	}
}

func TestExpand_NoMatchIsIdentity(t *testing.T) {
	e := newExpander(t, 3, nil)
	got := e.Expand(context.Background(), "zzz unrelated qqq")
	if len(got) != 1 || got[0] != "zzz unrelated qqq" {
		t.Errorf("unmatched query must pass through unchanged, got %v", got)
	}
}

func TestExpand_Deterministic(t *testing.T) {
	e := newExpander(t, 3, nil)
	ctx := context.Background()
	first := e.Expand(ctx, "pump maintenance fault")
	for i := 0; i < 10; i++ {
		if got := e.Expand(ctx, "pump maintenance fault"); len(got) != len(first) {
			t.Fatalf("expansion is not deterministic: %v vs %v", got, first)
		} else {
			for j := range got {
				if got[j] != first[j] {
					t.Fatalf("expansion is not deterministic: %v vs %v", got, first)
				}
			}
		}
	}
}

func TestExpand_ZeroBudgetDisables(t *testing.T) {
	llm := &fakeLLM{terms: []string{"keyword"}}
	e := newExpander(t, 0, llm)
	got := e.Expand(context.Background(), "valve maintenance")
	if len(got) != 1 {
		t.Errorf("zero budget must disable expansion, got %v", got)
	}
	if llm.calls != 0 {
		t.Error("LLM must not be consulted with a zero budget")
	}
}

func TestExpand_LLMFillsRemainingSlots(t *testing.T) {
	llm := &fakeLLM{terms: []string{"impeller", "cavitation"}}
	e := newExpander(t, 3, llm)
	got := e.Expand(context.Background(), "zzz unrelated qqq")

	if len(got) != 3 {
		t.Fatalf("expected original plus 2 LLM variants, got %v", got)
	}
	if !strings.Contains(got[1], "impeller") || !strings.Contains(got[2], "cavitation") {
		t.Errorf("LLM terms must be appended as keywords, got %v", got)
	}
}

func TestExpand_LLMFailureDegrades(t *testing.T) {
	llm := &fakeLLM{err: errors.New("breaker open")}
	e := newExpander(t, 3, llm)
	got := e.Expand(context.Background(), "zzz unrelated qqq")
	if len(got) != 1 {
		t.Errorf("LLM failure must degrade to the original query, got %v", got)
	}
}

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Complete(context.Context, string, string) (string, error) {
	return f.reply, f.err
}

func TestLLMClient_ParsesLines(t *testing.T) {
	c := NewLLMClient(&fakeChat{reply: "- impeller\n\n* cavitation\nseal wear\nextra\nmore\ntoomany"}, 5, zap.NewNop())

	terms, err := c.ExpandTerms(context.Background(), "pump fault")
	if err != nil {
		t.Fatalf("ExpandTerms: %v", err)
	}
	want := []string{"impeller", "cavitation", "seal wear", "extra", "more"}
	if len(terms) != len(want) {
		t.Fatalf("expected %d terms, got %v", len(want), terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("term %d = %q, want %q", i, terms[i], want[i])
		}
	}
}

func TestLLMClient_BreakerOpensAfterFailures(t *testing.T) {
	chat := &fakeChat{err: errors.New("upstream 500")}
	c := NewLLMClient(chat, 5, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.ExpandTerms(ctx, "q"); err == nil {
			t.Fatal("expected failure")
		}
	}

	// The breaker is now open; calls fail fast without reaching the provider.
	chat.err = nil
	chat.reply = "keyword"
	if _, err := c.ExpandTerms(ctx, "q"); err == nil {
		t.Fatal("expected fast failure while the breaker is open")
	}
}
