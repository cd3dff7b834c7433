package sink

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hauswerk/mqtt-gateway/config"
	"github.com/hauswerk/mqtt-gateway/errs"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

// pgExecer is the slice of the pgx pool the writer needs.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type postgresWriter struct {
	pool    pgExecer
	close   func()
	logger  *log.Logger
	metrics *telemetry.Pipeline
	policy  config.FailureMode
	fatal   fatalf
}

func spawnPostgres(ctx context.Context, target config.Target, logger *log.Logger, metrics *telemetry.Pipeline) (*Writer, error) {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(target.User, target.Password),
		Host:   fmt.Sprintf("%s:%d", target.Host, target.Port),
		Path:   target.Database,
	}
	pool, err := pgxpool.New(ctx, dsn.String())
	if err != nil {
		return nil, errs.New("sink", errs.CodeStartup, errs.WithMessage("postgres pool"), errs.WithCause(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New("sink", errs.CodeStartup, errs.WithMessage("postgres unreachable"), errs.WithCause(err))
	}

	pw := &postgresWriter{
		pool:    pool,
		close:   pool.Close,
		logger:  logger,
		metrics: metrics,
		policy:  target.FailurePolicy(),
		fatal:   processFatal(logger),
	}
	w := newWriter(string(config.TargetPostgres))
	go pw.run(ctx, w)
	logger.Printf("postgres writer started for %s:%d/%s", target.Host, target.Port, target.Database)
	return w, nil
}

// run writes one row per event. The measurement names the table; each
// standard measurement table is created by the migrations under db/.
func (pw *postgresWriter) run(ctx context.Context, w *Writer) {
	defer close(w.done)
	if pw.close != nil {
		defer pw.close()
	}

	for evt := range w.in {
		value, ok := evt.Fields["value"]
		if !ok {
			pw.logger.Printf("postgres write skipped, %s event has no value field", evt.Measurement)
			continue
		}
		statement := fmt.Sprintf(
			`insert into %q (time, location, sensor, value) values ($1, $2, $3, $4);`,
			evt.Measurement)
		_, err := pw.pool.Exec(ctx, statement,
			evt.Time(), evt.Tags["location"], evt.Tags["sensor"], value.Float64())
		if err != nil {
			pw.metrics.SinkError(string(config.TargetPostgres))
			if pw.policy == config.FailureAbort {
				pw.fatal("postgres write failed, aborting: %v", err)
				return
			}
			pw.logger.Printf("postgres write failed for %s, dropping event: %v", evt.Measurement, err)
			continue
		}
		pw.metrics.SinkWrite(string(config.TargetPostgres))
	}
}

var _ pgExecer = (*pgxpool.Pool)(nil)
