//go:build integration

package sink

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/hauswerk/mqtt-gateway/config"
	"github.com/hauswerk/mqtt-gateway/internal/event"
	"github.com/hauswerk/mqtt-gateway/internal/migrations"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "migrations")
}

func TestPostgresWriterPersistsReadings(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("gateway"),
		tcpostgres.WithUsername("gateway"),
		tcpostgres.WithPassword("secret"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://gateway:secret@%s:%s/gateway?sslmode=disable", host, port.Port())
	require.NoError(t, migrations.Apply(ctx, dsn, migrationsDir(t), nil))

	target := config.Target{
		Type:     config.TargetPostgres,
		Host:     host,
		Port:     port.Int(),
		User:     "gateway",
		Password: "secret",
		Database: "gateway",
	}
	w, err := Spawn(ctx, target, testLogger(), nil)
	require.NoError(t, err)

	reading := event.NewValue("temperature", 1701292592,
		map[string]string{"location": "kinderzimmer", "sensor": "BME680"},
		event.Float(19.45))
	w.Enqueue(reading)
	w.Close()
	w.Wait()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	var (
		at       time.Time
		location string
		sensor   string
		value    float64
	)
	row := pool.QueryRow(ctx, `select time, location, sensor, value from "temperature"`)
	require.NoError(t, row.Scan(&at, &location, &sensor, &value))
	require.Equal(t, time.Unix(1701292592, 0).UTC(), at.UTC())
	require.Equal(t, "kinderzimmer", location)
	require.Equal(t, "BME680", sensor)
	require.Equal(t, 19.45, value)
}

func TestSpawnFailsFastWhenPostgresUnreachable(t *testing.T) {
	target := config.Target{
		Type:     config.TargetPostgres,
		Host:     "127.0.0.1",
		Port:     1, // nothing listens here
		User:     "gateway",
		Password: "secret",
		Database: "gateway",
	}
	_, err := Spawn(context.Background(), target, testLogger(), nil)
	require.Error(t, err)
}
