package debugsink

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
)

func TestCountsAndLogsMessages(t *testing.T) {
	var buf bytes.Buffer
	handler := New(log.New(&buf, "", 0))

	handler.CheckMessage(broker.Message{Topic: "debug/a", Payload: []byte("1")})
	handler.CheckMessage(broker.Message{Topic: "debug/b", Payload: []byte("2")})

	require.Equal(t, uint64(2), handler.Checked())
	require.Contains(t, buf.String(), `#1 debug/a: "1"`)
	require.Contains(t, buf.String(), `#2 debug/b: "2"`)
}
