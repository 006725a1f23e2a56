package acp

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKindClassification(t *testing.T) {
	req, err := NewRequest(1, "initialize", map[string]any{"protocolVersion": 1})
	require.NoError(t, err)
	assert.Equal(t, KindRequest, req.Kind())
	assert.False(t, req.IsReply())

	note, err := NewNotification("session/update", map[string]any{"sessionId": "s"})
	require.NoError(t, err)
	assert.Equal(t, KindNotification, note.Kind())

	resp, err := NewResponse(1, map[string]any{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, KindResponse, resp.Kind())
	assert.True(t, resp.IsReply())

	errMsg := NewError(1, CodeMethodNotFound, "Method not found", nil)
	assert.Equal(t, KindError, errMsg.Kind())
	assert.True(t, errMsg.IsReply())
}

func TestRoundTripPreservesMeaning(t *testing.T) {
	orig, err := NewRequest(int64(7), "session/prompt", map[string]any{
		"sessionId": "sess_1",
		"prompt":    []map[string]any{{"type": "text", "text": "line one\nline two"}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	codec := NewCodec(&buf)
	require.NoError(t, codec.Write(orig))

	decoded, err := DecodeLine(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, KindRequest, decoded.Kind())
	assert.Equal(t, "session/prompt", decoded.Method)

	var params struct {
		SessionID string `json:"sessionId"`
		Prompt    []struct {
			Text string `json:"text"`
		} `json:"prompt"`
	}
	require.NoError(t, json.Unmarshal(decoded.Params, &params))
	assert.Equal(t, "sess_1", params.SessionID)
	require.Len(t, params.Prompt, 1)
	assert.Equal(t, "line one\nline two", params.Prompt[0].Text)
}

func TestCodecWritesExactlyOneLine(t *testing.T) {
	msg, err := NewResponse(1, map[string]any{"text": "with\nnewline and\rreturn"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewCodec(&buf).Write(msg))

	out := buf.Bytes()
	require.NotEmpty(t, out)
	assert.Equal(t, byte('\n'), out[len(out)-1])
	// The only raw newline is the terminator; embedded ones are escaped.
	assert.Equal(t, 1, bytes.Count(out, []byte{'\n'}))
	assert.Equal(t, 0, bytes.Count(out, []byte{'\r'}))
}

func TestNullResultStaysExplicit(t *testing.T) {
	msg, err := NewResponse(3, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewCodec(&buf).Write(msg))
	assert.Contains(t, buf.String(), `"result":null`)

	decoded, err := DecodeLine(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, KindResponse, decoded.Kind())
	assert.Equal(t, json.RawMessage("null"), decoded.Result)
}

func TestDecodeLineRejectsMalformedInput(t *testing.T) {
	_, err := DecodeLine([]byte("\r\n"))
	assert.ErrorIs(t, err, ErrBlankLine)

	_, err = DecodeLine([]byte("not json at all"))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = DecodeLine([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = DecodeLine([]byte(`"just a string"`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = DecodeLine([]byte(`{"id":1,"method":"x"}`))
	assert.ErrorIs(t, err, ErrBadVersion)

	_, err = DecodeLine([]byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`))
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeLineTrimsTrailingCRLF(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\r\n"))
	require.NoError(t, err)
	assert.Equal(t, KindRequest, msg.Kind())
	assert.Equal(t, "initialize", msg.Method)
}
