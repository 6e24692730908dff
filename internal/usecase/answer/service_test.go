package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/domain"
)

type fakeRetriever struct {
	chunks []domain.Chunk
	err    error
}

func (f *fakeRetriever) Search(context.Context, string, int, []string, string) ([]domain.Chunk, error) {
	return f.chunks, f.err
}

type fakeChat struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (f *fakeChat) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	return f.reply, f.err
}

func evidence() []domain.Chunk {
	return []domain.Chunk{
		{DocumentID: "manual-7", Text: "Close the inlet valve before removing the seal."},
	}
}

func TestAsk_GroundedAnswer(t *testing.T) {
	chat := &fakeChat{reply: "Close the inlet valve first."}
	s := New(&fakeRetriever{chunks: evidence()}, chat, 5, zap.NewNop())

	got, err := s.Ask(context.Background(), "how do I replace the seal?", "operator", nil, "u")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got.Answer != "Close the inlet valve first." {
		t.Errorf("unexpected answer: %q", got.Answer)
	}
	if len(got.References) != 1 || got.References[0].DocumentID != "manual-7" {
		t.Errorf("references must carry the evidence, got %+v", got.References)
	}
	if !strings.Contains(chat.lastUser, "Close the inlet valve before removing the seal.") {
		t.Error("evidence text must appear in the prompt")
	}
	if !strings.Contains(chat.lastUser, "how do I replace the seal?") {
		t.Error("question must appear in the prompt")
	}
}

func TestAsk_RoleShapesSystemPrompt(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	s := New(&fakeRetriever{chunks: evidence()}, chat, 5, zap.NewNop())
	ctx := context.Background()

	if _, err := s.Ask(ctx, "q", "operator", nil, "u"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(chat.lastSystem, "equipment operator") {
		t.Errorf("operator prompt missing, got %q", chat.lastSystem)
	}

	if _, err := s.Ask(ctx, "q", "unknown-role", nil, "u"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if chat.lastSystem != basePrompt {
		t.Error("unknown role must fall back to the base prompt")
	}
}

func TestAsk_NoEvidenceSkipsModel(t *testing.T) {
	chat := &fakeChat{reply: "should not be called"}
	s := New(&fakeRetriever{}, chat, 5, zap.NewNop())

	got, err := s.Ask(context.Background(), "q", "operator", nil, "u")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if chat.calls != 0 {
		t.Error("model must not be consulted without evidence")
	}
	if got.Answer != noEvidenceAnswer {
		t.Errorf("expected the no-evidence answer, got %q", got.Answer)
	}
	if len(got.References) != 0 {
		t.Error("no-evidence answer must carry no references")
	}
}

func TestAsk_ModelFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("rate limited")}
	s := New(&fakeRetriever{chunks: evidence()}, chat, 5, zap.NewNop())

	if _, err := s.Ask(context.Background(), "q", "operator", nil, "u"); !errors.Is(err, domain.ErrAnswerUnavailable) {
		t.Fatalf("expected ErrAnswerUnavailable, got %v", err)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	s := New(&fakeRetriever{}, &fakeChat{}, 5, zap.NewNop())
	if _, err := s.Ask(context.Background(), "  ", "operator", nil, "u"); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
