package websocket

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// STOMP commands used by the chat channel and the test broker.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

var ErrMalformedFrame = errors.New("malformed stomp frame")

type Header struct {
	Key   string
	Value string
}

// Frame is one STOMP 1.2 frame. Each websocket text message carries one
// frame or a bare EOL heartbeat.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

func NewFrame(command string, kv ...string) *Frame {
	f := &Frame{Command: command}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, Header{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Get returns the first value of key; repeated headers keep the first.
func (f *Frame) Get(key string) string {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

func (f *Frame) Set(key, value string) {
	for i := range f.Headers {
		if f.Headers[i].Key == key {
			f.Headers[i].Value = value
			return
		}
	}
	f.Headers = append(f.Headers, Header{Key: key, Value: value})
}

func (f *Frame) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')
	escape := f.Command != CmdConnect && f.Command != CmdConnected
	for _, h := range f.Headers {
		if escape {
			b.WriteString(escapeHeader(h.Key))
			b.WriteByte(':')
			b.WriteString(escapeHeader(h.Value))
		} else {
			b.WriteString(h.Key)
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 && f.Get("content-length") == "" {
		fmt.Fprintf(&b, "content-length:%d\n", len(f.Body))
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// ParseFrame decodes one frame. A heartbeat yields a nil frame and nil error.
func ParseFrame(data []byte) (*Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return nil, nil
	}

	head, body, ok := bytes.Cut(data, []byte("\n\n"))
	if !ok {
		head, body, ok = bytes.Cut(data, []byte("\r\n\r\n"))
		if !ok {
			return nil, ErrMalformedFrame
		}
	}

	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	f := &Frame{Command: lines[0]}
	if f.Command == "" {
		return nil, ErrMalformedFrame
	}
	unescape := f.Command != CmdConnect && f.Command != CmdConnected
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedFrame, line)
		}
		if unescape {
			k, v = unescapeHeader(k), unescapeHeader(v)
		}
		if f.Get(k) == "" {
			f.Headers = append(f.Headers, Header{Key: k, Value: v})
		}
	}

	end := bytes.IndexByte(body, 0)
	if end < 0 {
		return nil, fmt.Errorf("%w: missing NUL terminator", ErrMalformedFrame)
	}
	f.Body = body[:end]
	return f, nil
}

var (
	headerEscaper   = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	headerUnescaper = strings.NewReplacer("\\\\", "\\", "\\r", "\r", "\\n", "\n", "\\c", ":")
)

func escapeHeader(s string) string   { return headerEscaper.Replace(s) }
func unescapeHeader(s string) string { return headerUnescaper.Replace(s) }

// heartbeat is the EOL frame sent to keep the connection alive.
var heartbeat = []byte("\n")
