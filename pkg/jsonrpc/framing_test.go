package jsonrpc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMessage_Valid(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"method":"kaiak/generate_fix"}`
	raw := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	reader := bufio.NewReader(strings.NewReader(raw))

	msg, err := ReadMessage(reader)
	require.NoError(t, err)
	require.Equal(t, body, string(msg))
}

func TestReadMessage_WithExtraHeaders(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":2}`
	raw := fmt.Sprintf("Content-Length: %d\r\nContent-Type: application/kaiak-jsonrpc\r\n\r\n%s", len(body), body)
	reader := bufio.NewReader(strings.NewReader(raw))

	msg, err := ReadMessage(reader)
	require.NoError(t, err)
	require.Equal(t, body, string(msg))
}

func TestReadMessage_MissingContentLength(t *testing.T) {
	raw := "Content-Type: application/json\r\n\r\n{}"
	reader := bufio.NewReader(strings.NewReader(raw))

	_, err := ReadMessage(reader)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Content-Length")
}

func TestReadMessage_InvalidContentLength(t *testing.T) {
	raw := "Content-Length: abc\r\n\r\n{}"
	reader := bufio.NewReader(strings.NewReader(raw))

	_, err := ReadMessage(reader)
	require.Error(t, err)
}

func TestReadMessage_EOF(t *testing.T) {
	reader := bufio.NewReader(bytes.NewReader(nil))

	_, err := ReadMessage(reader)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadMessage_MultipleMessages(t *testing.T) {
	body1 := `{"jsonrpc":"2.0","id":1}`
	body2 := `{"jsonrpc":"2.0","id":2}`
	raw := fmt.Sprintf("Content-Length: %d\r\n\r\n%sContent-Length: %d\r\n\r\n%s",
		len(body1), body1, len(body2), body2)
	reader := bufio.NewReader(strings.NewReader(raw))

	msg1, err := ReadMessage(reader)
	require.NoError(t, err)
	require.Equal(t, body1, string(msg1))

	msg2, err := ReadMessage(reader)
	require.NoError(t, err)
	require.Equal(t, body2, string(msg2))
}

func TestWriteMessage_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"jsonrpc":"2.0","method":"kaiak/client/user_message"}`)
	require.NoError(t, WriteMessage(&buf, body))

	msg, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, body, msg)
}
