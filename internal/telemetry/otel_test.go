package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hauswerk/mqtt-gateway/config"
)

func TestInitWithoutEndpointReturnsNoop(t *testing.T) {
	provider, shutdown, err := Init(context.Background(), config.Telemetry{})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, shutdown(context.Background()))
}

func TestParseEndpoint(t *testing.T) {
	host, insecure, err := parseEndpoint("http://collector:4318")
	require.NoError(t, err)
	require.Equal(t, "collector:4318", host)
	require.True(t, insecure)

	host, insecure, err = parseEndpoint("https://collector.example.com")
	require.NoError(t, err)
	require.Equal(t, "collector.example.com", host)
	require.False(t, insecure)
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	p.MessageReceived("shellies")
	p.MessageUnrouted()
	p.ParseFailure("shelly")
	p.EventEmitted("shelly")
	p.SinkWrite("influxdb")
	p.SinkError("postgresql")
	p.BatchFlushed("influxdb", 3)
}

func TestPipelineInstrumentsRegister(t *testing.T) {
	provider, shutdown, err := Init(context.Background(), config.Telemetry{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	p, err := NewPipeline(provider)
	require.NoError(t, err)
	p.MessageReceived("solar")
	p.BatchFlushed("influxdb", 7)
}
