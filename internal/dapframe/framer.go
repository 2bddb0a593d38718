// Package dapframe implements the chunk-safe Content-Length framing used
// by the Debug Adapter Protocol. It owns only the byte-accumulation and
// header parsing; message typing and JSON shape come from
// github.com/google/go-dap.
package dapframe

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/google/go-dap"
)

const headerSep = "\r\n\r\n"

// Framer decodes a byte stream, fed incrementally via Feed, into a
// sequence of dap.Message values. It tolerates any split of the input
// across Feed calls and skips bodies that fail to parse as JSON without
// losing framing sync.
type Framer struct {
	buf bytes.Buffer
}

// New returns an empty Framer.
func New() *Framer {
	return &Framer{}
}

// Feed appends data to the internal accumulator and returns every message
// that became decodable as a result. Partial headers/bodies are held for
// the next Feed call.
func (f *Framer) Feed(data []byte) []dap.Message {
	f.buf.Write(data)

	var out []dap.Message
	for {
		msg, consumed := f.tryDecodeOne()
		if !consumed {
			return out
		}
		if msg != nil {
			out = append(out, msg)
		}
	}
}

// tryDecodeOne attempts to pull one framed message off the front of the
// buffer. consumed is true iff bytes were removed from the buffer — the
// caller should keep looping while consumed is true, even if msg is nil
// (a malformed header block or body was discarded).
func (f *Framer) tryDecodeOne() (msg dap.Message, consumed bool) {
	raw := f.buf.Bytes()
	sepAt := bytes.Index(raw, []byte(headerSep))
	if sepAt == -1 {
		return nil, false
	}

	header := string(raw[:sepAt])
	length, ok := parseContentLength(header)
	if !ok {
		// No usable Content-Length header: drop this header block and
		// resynchronize on the next one.
		f.buf.Next(sepAt + len(headerSep))
		return nil, true
	}

	bodyStart := sepAt + len(headerSep)
	if len(raw) < bodyStart+length {
		// Body not fully arrived yet; wait for more bytes.
		return nil, false
	}

	body := make([]byte, length)
	copy(body, raw[bodyStart:bodyStart+length])
	f.buf.Next(bodyStart + length)

	decoded, err := dap.DecodeProtocolMessage(body)
	if err != nil {
		// Malformed JSON body: already consumed, skip it and move on.
		return nil, true
	}
	return decoded, true
}

// parseContentLength scans header lines (CRLF-separated, case-insensitive
// field name) for Content-Length.
func parseContentLength(header string) (int, bool) {
	for _, line := range strings.Split(header, "\r\n") {
		colonAt := strings.IndexByte(line, ':')
		if colonAt == -1 {
			continue
		}
		name := strings.TrimSpace(line[:colonAt])
		if !strings.EqualFold(name, "Content-Length") {
			continue
		}
		value := strings.TrimSpace(line[colonAt+1:])
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Encode writes message in wire form: a UTF-8 JSON body preceded by an
// exact-byte-count Content-Length header. Feeding the output of Encode
// back into a Framer must reproduce message.
func Encode(w io.Writer, message dap.Message) error {
	return dap.WriteProtocolMessage(w, message)
}
