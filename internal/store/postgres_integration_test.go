//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"cvrpsolver/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(t.Context()))
	require.NoError(t, p.MigrateDir("../../db/migrations"))

	run, err := p.CreateRun(t.Context(), newRun("t_it", "it"))
	require.NoError(t, err)
	require.NoError(t, p.UpdateRunStatus(t.Context(), "t_it", run.ID, model.RunRunning))
	_, err = p.FailRun(t.Context(), "t_it", run.ID, "integration")
	require.NoError(t, err)
	_, _, err = p.ListRuns(t.Context(), "t_it", "", "", 1)
	require.NoError(t, err)
}
