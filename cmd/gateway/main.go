// Command gateway runs the MQTT telemetry gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/hauswerk/mqtt-gateway/config"
	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/router"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

const (
	defaultConfigPath        = "config.yaml"
	gatewayLoggerPrefix      = "gateway "
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newGatewayLogger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration loaded: broker=%s, sources=%d", cfg.MQTTURL, len(cfg.Sources))

	meterProvider, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	metrics, err := telemetry.NewPipeline(meterProvider)
	if err != nil {
		logger.Fatalf("initialize pipeline metrics: %v", err)
	}

	table, err := router.Build(ctx, cfg.Sources, logger, metrics)
	if err != nil {
		logger.Fatalf("initialise sources: %v", err)
	}

	client := broker.NewPahoClient(cfg.MQTTURL, cfg.MQTTClientID, logger)
	receiver := broker.NewReceiver(client, table, logger)

	var lifecycle conc.WaitGroup
	listenErr := make(chan error, 1)
	lifecycle.Go(func() {
		listenErr <- receiver.Listen()
	})

	logger.Print("gateway started; awaiting shutdown signal")
	select {
	case <-ctx.Done():
		logger.Print("shutdown signal received, initiating graceful shutdown")
		// Disconnect closes the message stream; Listen drains it, shuts the
		// routing table down and returns.
		client.Disconnect()
		if err := <-listenErr; err != nil {
			logger.Printf("receiver: %v", err)
		}
	case err := <-listenErr:
		if err != nil {
			logger.Fatalf("receiver: %v", err)
		}
		logger.Print("message stream ended")
	}

	shutdownStart := time.Now()
	lifecycle.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer shutdownCancel()
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: telemetry: %v", err)
	}

	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to gateway configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	if *cfgPath != "" {
		return *cfgPath
	}
	return filepath.Clean(defaultConfigPath)
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newGatewayLogger() *log.Logger {
	flags := log.LstdFlags | log.Lmicroseconds
	if os.Getenv("GATEWAY_VERBOSE") != "" {
		flags |= log.Lshortfile
	}
	return log.New(os.Stdout, gatewayLoggerPrefix, flags)
}
