package server

import (
	"encoding/json"
	"math"
	"testing"
)

func TestEncodeEnvelope(t *testing.T) {
	b, err := Encode(MsgCountdown, 20)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"type":"countdown","data":20}` {
		t.Fatalf("unexpected frame %s", b)
	}

	b, err = Encode(MsgMatchReset, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"type":"match_reset","data":{}}` {
		t.Fatalf("nil payload should encode as empty object: %s", b)
	}

	if _, err := Encode("", 1); err == nil {
		t.Fatalf("expected error for empty type")
	}
}

func TestPlayersStateWireShape(t *testing.T) {
	r := NewRegistry()
	r.Join("s1", "alice", CharPinky, 1.5, 2)
	b, err := Encode(MsgPlayersState, r.Snapshot())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var frame struct {
		Type string                    `json:"type"`
		Data map[string]map[string]any `json:"data"`
	}
	if err := json.Unmarshal(b, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := frame.Data["s1"]
	if p["id"] != "s1" || p["username"] != "alice" || p["character"] != "pinky" ||
		p["x"] != 1.5 || p["score"] != float64(0) || p["dead"] != false {
		t.Fatalf("unexpected wire shape: %v", p)
	}
}

func TestParseInput(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		want    any
		wantErr bool
	}{
		{
			name:  "join",
			frame: `{"type":"player_join","data":{"username":"alice","character":"pinky","x":10,"y":20}}`,
			want:  joinCmd{ID: "s", Msg: JoinMessage{Username: "alice", Character: "pinky", X: 10, Y: 20}},
		},
		{
			name:  "join without data",
			frame: `{"type":"player_join"}`,
			want:  joinCmd{ID: "s"},
		},
		{
			name:  "move truncates score",
			frame: `{"type":"player_move","data":{"x":1.5,"y":2.5,"score":300.9}}`,
			want:  moveCmd{ID: "s", X: 1.5, Y: 2.5, Score: 300},
		},
		{
			name:  "score beyond int64 saturates",
			frame: `{"type":"player_move","data":{"x":1,"y":2,"score":1e19}}`,
			want:  moveCmd{ID: "s", X: 1, Y: 2, Score: math.MaxInt64},
		},
		{
			name:  "negative score beyond int64 saturates",
			frame: `{"type":"player_move","data":{"score":-1e19}}`,
			want:  moveCmd{ID: "s", Score: math.MinInt64},
		},
		{
			name:  "game over",
			frame: `{"type":"player_game_over"}`,
			want:  diedCmd{ID: "s"},
		},
		{
			name:  "unknown type is ignored",
			frame: `{"type":"chat","data":"hi"}`,
			want:  nil,
		},
		{name: "empty", frame: ``, wantErr: true},
		{name: "not json", frame: `move up`, wantErr: true},
		{name: "missing type", frame: `{"data":{}}`, wantErr: true},
		{name: "bad move payload", frame: `{"type":"player_move","data":{"x":"left"}}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInput("s", []byte(tc.frame))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %#v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}
