package sink

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/hauswerk/mqtt-gateway/config"
	"github.com/hauswerk/mqtt-gateway/internal/event"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

// flushInterval is the accumulation window for influx batches.
const flushInterval = 5 * time.Second

// influxWriteAPI is the slice of the influx client the writer needs.
type influxWriteAPI interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type influxWriter struct {
	api      influxWriteAPI
	close    func()
	logger   *log.Logger
	metrics  *telemetry.Pipeline
	policy   config.FailureMode
	interval time.Duration
	fatal    fatalf
}

func spawnInflux(ctx context.Context, target config.Target, logger *log.Logger, metrics *telemetry.Pipeline) (*Writer, error) {
	token := target.Token
	if token == "" && target.User != "" {
		// v1.8 compatibility: credentials travel as user:password token
		token = target.User + ":" + target.Password
	}
	client := influxdb2.NewClient(target.URL, token)

	iw := &influxWriter{
		api:      client.WriteAPIBlocking("", target.Database),
		close:    client.Close,
		logger:   logger,
		metrics:  metrics,
		policy:   target.FailurePolicy(),
		interval: flushInterval,
		fatal:    processFatal(logger),
	}
	w := newWriter(string(config.TargetInfluxDB))
	go iw.run(ctx, w)
	logger.Printf("influx writer started for %s/%s", target.URL, target.Database)
	return w, nil
}

// run accumulates points and flushes them on each window tick and once more
// on shutdown. An empty window produces no write.
func (iw *influxWriter) run(ctx context.Context, w *Writer) {
	defer close(w.done)
	if iw.close != nil {
		defer iw.close()
	}

	ticker := time.NewTicker(iw.interval)
	defer ticker.Stop()

	var batch []*write.Point
	for {
		select {
		case evt, ok := <-w.in:
			if !ok {
				iw.flush(ctx, batch)
				return
			}
			batch = append(batch, toPoint(evt))
		case <-ticker.C:
			iw.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (iw *influxWriter) flush(ctx context.Context, batch []*write.Point) {
	if len(batch) == 0 {
		return
	}
	if err := iw.api.WritePoint(ctx, batch...); err != nil {
		iw.metrics.SinkError(string(config.TargetInfluxDB))
		if iw.policy == config.FailureAbort {
			iw.fatal("influx write failed, aborting: %v", err)
			return
		}
		iw.logger.Printf("influx write failed, dropping %d point(s): %v", len(batch), err)
		return
	}
	iw.metrics.SinkWrite(string(config.TargetInfluxDB))
	iw.metrics.BatchFlushed(string(config.TargetInfluxDB), len(batch))
}

func toPoint(evt event.Event) *write.Point {
	fields := make(map[string]any, len(evt.Fields))
	for name, value := range evt.Fields {
		fields[name] = value.Value()
	}
	return write.NewPoint(evt.Measurement, evt.Tags, fields, evt.Time())
}
