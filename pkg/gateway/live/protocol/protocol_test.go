package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/vango-go/resilios/pkg/core/live"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"mic":"granted",
		"surface":{"width":320,"height":240},
		"bins":128
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.ProtocolVersion != "1" || !hello.MicAllowed() {
		t.Fatalf("hello=%+v", hello)
	}
	if hello.Surface == nil || hello.Surface.Width != 320 || hello.Bins != 128 {
		t.Fatalf("hello=%+v", hello)
	}
}

func TestDecodeClientMessage_HelloMicOmittedMeansGranted(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"hello","protocol_version":"1"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	if !msg.(ClientHello).MicAllowed() {
		t.Fatalf("expected mic allowed")
	}
}

func TestDecodeClientMessage_HelloErrors(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		code  string
		param string
	}{
		{"missing version", `{"type":"hello"}`, "bad_request", "protocol_version"},
		{"wrong version", `{"type":"hello","protocol_version":"2"}`, "unsupported", "protocol_version"},
		{"bad mic", `{"type":"hello","protocol_version":"1","mic":"maybe"}`, "bad_request", "mic"},
		{"bad bins", `{"type":"hello","protocol_version":"1","bins":5000}`, "bad_request", "bins"},
		{"bad surface", `{"type":"hello","protocol_version":"1","surface":{"width":0,"height":10}}`, "bad_request", "surface.width"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tc.raw))
			decErr, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("err type = %T (%v)", err, err)
			}
			if decErr.Code != tc.code || decErr.Param != tc.param {
				t.Fatalf("err=%+v", decErr)
			}
		})
	}
}

func TestDecodeClientMessage_Commands(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"toggle"}`))
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, ok := msg.(ClientToggle); !ok {
		t.Fatalf("toggle decoded as %T", msg)
	}

	msg, err = DecodeClientMessage([]byte(`{"type":"stop"}`))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := msg.(ClientStop); !ok {
		t.Fatalf("stop decoded as %T", msg)
	}

	msg, err = DecodeClientMessage([]byte(`{"type":"resize","width":100,"height":50}`))
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if r := msg.(ClientResize); r.Width != 100 || r.Height != 50 {
		t.Fatalf("resize=%+v", r)
	}
}

func TestDecodeClientMessage_LevelsClamped(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"levels","levels":[-5,0,128,255,999]}`))
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	got := msg.(ClientLevels).Bytes()
	want := []uint8{0, 0, 128, 255, 255}
	if string(got) != string(want) {
		t.Fatalf("levels=%v want %v", got, want)
	}
}

func TestDecodeClientMessage_LevelsTooMany(t *testing.T) {
	raw := `{"type":"levels","levels":[` + strings.TrimSuffix(strings.Repeat("1,", MaxLevels+1), ",") + `]}`
	if _, err := DecodeClientMessage([]byte(raw)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeClientMessage_RejectsUnknownAndMalformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"type":"audio_frame"}`} {
		if _, err := DecodeClientMessage([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestServerState_EncodesStateNames(t *testing.T) {
	b, err := json.Marshal(ServerState{Type: "state", From: live.StateIdle, To: live.StateConnecting})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"state","from":"IDLE","to":"CONNECTING"}` {
		t.Fatalf("json=%s", b)
	}
}
