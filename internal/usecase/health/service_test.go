package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestCheck_AllHealthy(t *testing.T) {
	s := New(&fakePinger{}, true)
	st := s.Check(context.Background())
	if st.Status != "ok" || st.Database != "ok" || st.Reranker != "ok" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestCheck_DatabaseDown(t *testing.T) {
	s := New(&fakePinger{err: errors.New("refused")}, true)
	st := s.Check(context.Background())
	if st.Status != "unavailable" || st.Database != "unreachable" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestCheck_RerankerDisabledIsDegraded(t *testing.T) {
	s := New(&fakePinger{}, false)
	st := s.Check(context.Background())
	if st.Status != "degraded" || st.Reranker != "disabled" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestCheck_DatabaseDownDominatesDegraded(t *testing.T) {
	s := New(&fakePinger{err: errors.New("refused")}, false)
	st := s.Check(context.Background())
	if st.Status != "unavailable" {
		t.Errorf("unexpected status: %+v", st)
	}
}
