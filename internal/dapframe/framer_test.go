package dapframe

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedBytes(t *testing.T, msg dap.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, msg))
	return buf.Bytes()
}

func sampleRequest() *dap.InitializeRequest {
	req := &dap.InitializeRequest{}
	req.Type = "request"
	req.Command = "initialize"
	req.Seq = 1
	req.Arguments.AdapterID = "rv32sim"
	return req
}

func TestFramerDecodesOneWholeMessage(t *testing.T) {
	raw := encodedBytes(t, sampleRequest())

	f := New()
	msgs := f.Feed(raw)
	require.Len(t, msgs, 1)

	got, ok := msgs[0].(*dap.InitializeRequest)
	require.True(t, ok)
	assert.Equal(t, "rv32sim", got.Arguments.AdapterID)
}

func TestFramerHandlesArbitraryByteSplits(t *testing.T) {
	raw := encodedBytes(t, sampleRequest())

	for split := 1; split < len(raw); split++ {
		f := New()
		first := f.Feed(raw[:split])
		second := f.Feed(raw[split:])
		all := append(first, second...)
		require.Lenf(t, all, 1, "split at byte %d produced %d messages", split, len(all))
	}
}

func TestFramerDecodesMultipleMessagesFedTogether(t *testing.T) {
	var combined bytes.Buffer
	combined.Write(encodedBytes(t, sampleRequest()))
	combined.Write(encodedBytes(t, sampleRequest()))

	f := New()
	msgs := f.Feed(combined.Bytes())
	assert.Len(t, msgs, 2)
}

func TestFramerSkipsMalformedBodyBetweenWellFormedOnes(t *testing.T) {
	good1 := encodedBytes(t, sampleRequest())
	good2 := encodedBytes(t, sampleRequest())
	bad := []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", 9, "not json!"))

	var combined bytes.Buffer
	combined.Write(good1)
	combined.Write(bad)
	combined.Write(good2)

	f := New()
	msgs := f.Feed(combined.Bytes())
	require.Len(t, msgs, 2)
}

func TestFramerHeaderNameIsCaseInsensitive(t *testing.T) {
	body := `{"seq":1,"type":"request","command":"initialize","arguments":{"adapterID":"rv32sim"}}`
	raw := []byte(fmt.Sprintf("content-length: %d\r\n\r\n%s", len(body), body))

	f := New()
	msgs := f.Feed(raw)
	require.Len(t, msgs, 1)
}

func TestFramerWaitsForFullBody(t *testing.T) {
	raw := encodedBytes(t, sampleRequest())
	f := New()

	msgs := f.Feed(raw[:len(raw)-1])
	assert.Empty(t, msgs)

	msgs = f.Feed(raw[len(raw)-1:])
	assert.Len(t, msgs, 1)
}

func TestEncodeDecodeRoundTripIsIdempotent(t *testing.T) {
	req := sampleRequest()
	raw := encodedBytes(t, req)

	f := New()
	msgs := f.Feed(raw)
	require.Len(t, msgs, 1)

	raw2 := encodedBytes(t, msgs[0])
	assert.Equal(t, raw, raw2)
}
