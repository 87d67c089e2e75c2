package websocket

import (
	"errors"
	"testing"
	"time"
)

func TestFrameEncodeParse(t *testing.T) {
	f := NewFrame(CmdSend, "destination", "/app/chat/room-1", "note", "a:b\nc")
	f.Body = []byte(`{"content":"안녕하세요"}`)

	got, err := ParseFrame(f.Encode())
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if got.Command != CmdSend {
		t.Errorf("Command = %q", got.Command)
	}
	if got.Get("destination") != "/app/chat/room-1" {
		t.Errorf("destination = %q", got.Get("destination"))
	}
	if got.Get("note") != "a:b\nc" {
		t.Errorf("escaped header = %q", got.Get("note"))
	}
	if string(got.Body) != `{"content":"안녕하세요"}` {
		t.Errorf("Body = %q", got.Body)
	}
	if got.Get("content-length") == "" {
		t.Error("content-length not set for a frame with a body")
	}
}

func TestConnectFrameIsNotEscaped(t *testing.T) {
	f := NewFrame(CmdConnect, "heart-beat", "4000,4000")
	want := "CONNECT\nheart-beat:4000,4000\n\n\x00"
	if got := string(f.Encode()); got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantCmd string
		wantErr bool
	}{
		{name: "heartbeat", input: "\n"},
		{name: "crlf heartbeat", input: "\r\n"},
		{name: "no headers", input: "DISCONNECT\n\n\x00", wantCmd: CmdDisconnect},
		{name: "crlf lines", input: "MESSAGE\r\nsubscription:sub-0\r\n\r\nhi\x00", wantCmd: CmdMessage},
		{name: "leading heartbeat", input: "\nRECEIPT\nreceipt-id:7\n\n\x00", wantCmd: CmdReceipt},
		{name: "missing terminator", input: "MESSAGE\n\nbody", wantErr: true},
		{name: "bad header", input: "MESSAGE\nnocolon\n\n\x00", wantErr: true},
		{name: "no blank line", input: "MESSAGE\x00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Fatalf("ParseFrame() error = %v, want ErrMalformedFrame", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}
			if tt.wantCmd == "" {
				if f != nil {
					t.Errorf("ParseFrame() = %+v, want heartbeat", f)
				}
				return
			}
			if f.Command != tt.wantCmd {
				t.Errorf("Command = %q, want %q", f.Command, tt.wantCmd)
			}
		})
	}
}

func TestRepeatedHeaderKeepsFirst(t *testing.T) {
	f, err := ParseFrame([]byte("MESSAGE\nfoo:1\nfoo:2\n\n\x00"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Get("foo") != "1" {
		t.Errorf("foo = %q, want 1", f.Get("foo"))
	}
}

func TestNegotiateHeartbeat(t *testing.T) {
	sec := time.Second
	tests := []struct {
		name    string
		in, out time.Duration
		server  string
		wantIn  time.Duration
		wantOut time.Duration
	}{
		{name: "both sides", in: 4 * sec, out: 4 * sec, server: "10000,2000", wantIn: 10 * sec, wantOut: 4 * sec},
		{name: "server disabled", in: 4 * sec, out: 4 * sec, server: "0,0"},
		{name: "client disabled", server: "4000,4000"},
		{name: "missing header", in: 4 * sec, out: 4 * sec, server: ""},
		{name: "server wants slower", in: 4 * sec, out: 4 * sec, server: "1000,8000", wantIn: 4 * sec, wantOut: 8 * sec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := negotiateHeartbeat(tt.in, tt.out, tt.server)
			if in != tt.wantIn || out != tt.wantOut {
				t.Errorf("negotiateHeartbeat() = %v, %v, want %v, %v", in, out, tt.wantIn, tt.wantOut)
			}
		})
	}
}
