package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"racearena/server"
)

type fakeNATS struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestPublishEncodesEvent(t *testing.T) {
	fn := &fakeNATS{}
	p := &Publisher{nc: fn, subject: "arena.match"}

	res := server.MatchResult{WinnerName: "alice", WinnerCharacter: server.CharPinky, WinnerScore: 10000}
	p.Publish(server.MatchEvent{
		InstanceID: "inst-1",
		Kind:       server.EventMatchOver,
		Phase:      server.PhaseFinished,
		Players:    2,
		Result:     &res,
		At:         time.Unix(0, 0).UTC(),
	})

	if len(fn.subjects) != 1 || fn.subjects[0] != "arena.match.inst-1" {
		t.Fatalf("subjects = %v", fn.subjects)
	}
	var got map[string]any
	if err := json.Unmarshal(fn.payloads[0], &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got["kind"] != "match_over" || got["phase"] != "finished" {
		t.Fatalf("unexpected payload: %v", got)
	}
	result, ok := got["result"].(map[string]any)
	if !ok || result["winnerName"] != "alice" || result["winnerScore"] != float64(10000) {
		t.Fatalf("unexpected result: %v", got["result"])
	}
}

func TestPublishFailureDoesNotPanic(t *testing.T) {
	fn := &fakeNATS{err: errors.New("nats: connection closed")}
	p := &Publisher{nc: fn, subject: "arena.match"}
	p.Publish(server.MatchEvent{InstanceID: "x", Kind: server.EventMatchReset})
	if len(fn.subjects) != 0 {
		t.Fatalf("nothing should be recorded on failure")
	}
	if err := p.Close(); err != nil || !fn.drained {
		t.Fatalf("close should drain, err=%v drained=%v", err, fn.drained)
	}
}
