package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name: "postgres",
			config: Config{
				Driver:   DriverPostgres,
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "secret",
				Database: "transcoder",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=postgres password=secret dbname=transcoder sslmode=disable",
		},
		{
			name:   "sqlite",
			config: Config{Driver: DriverSQLite, Path: "/tmp/jobs.db"},
			want:   "file:/tmp/jobs.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestNewClient_SQLite(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := NewClient(&Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "data", "jobs.db"),
	}, logger)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, DriverSQLite, client.Driver())
	require.NoError(t, client.HealthCheck(context.Background()))

	// bindvars are rebound to the question style
	assert.Equal(t, "SELECT ? + ?", client.GetDB().Rebind("SELECT ? + ?"))
}

func TestNewClient_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewClient(&Config{Driver: "oracle"}, logger)
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = NewClient(&Config{Driver: DriverSQLite}, logger)
	assert.ErrorContains(t, err, "sqlite path is required")
}
