package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveMultiStart(t *testing.T) {
	inst := randomInstance(t, 12, 25, 100)
	cfg := testConfig()
	cfg.MaxIterations = 30
	cfg.Method = Random

	log := &eventLog{}
	best, starts, err := SolveMultiStart(context.Background(), inst, cfg, 4, log)
	require.NoError(t, err)
	require.Len(t, starts, 4)
	requireFeasible(t, best.Best)

	assert.Equal(t, cfg.Seed, starts[0].Seed)
	seeds := map[int64]bool{}
	for i, sr := range starts {
		assert.Equal(t, i, sr.Start)
		assert.False(t, seeds[sr.Seed], "seed reused")
		seeds[sr.Seed] = true
		assert.False(t, sr.Result.Best.Better(best.Best), "start %d beats the reported best", i)
	}
	require.NotEmpty(t, log.events)

	again, _, err := SolveMultiStart(context.Background(), inst, cfg, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, best.Best.Sequences(), again.Best.Sequences())
}

func TestSolveMultiStartSingleMatchesSolver(t *testing.T) {
	inst := randomInstance(t, 13, 20, 100)
	cfg := testConfig()
	cfg.MaxIterations = 20
	multi, _, err := SolveMultiStart(context.Background(), inst, cfg, 0, nil)
	require.NoError(t, err)
	single, _ := solve(t, inst, cfg)
	assert.Equal(t, single.Best.Sequences(), multi.Best.Sequences())
}

func TestDeriveSeedSpreads(t *testing.T) {
	assert.NotEqual(t, deriveSeed(1, 1), deriveSeed(1, 2))
	assert.NotEqual(t, deriveSeed(1, 1), deriveSeed(2, 1))
	assert.Equal(t, deriveSeed(0, 3), deriveSeed(defaultSeed, 3))
}
