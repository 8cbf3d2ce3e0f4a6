package roomid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedGenerator always draws the same index.
type fixedGenerator struct{ idx int }

func (g fixedGenerator) Index(int) (int, error) { return g.idx, nil }

type failingGenerator struct{}

func (failingGenerator) Index(int) (int, error) { return 0, errors.New("entropy unavailable") }

func TestIssueReturnsDistinctIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := r.Issue()
		require.NoError(t, err)
		assert.True(t, Validate(id), "invalid id %q", id)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
	assert.Equal(t, 200, r.Len())
}

func TestIssueFallsBackToScanOnCollisions(t *testing.T) {
	r := NewRegistry(WithGenerator(fixedGenerator{idx: 7}))

	first, err := r.Issue()
	require.NoError(t, err)
	assert.Equal(t, Code(7), first)

	second, err := r.Issue()
	require.NoError(t, err)
	assert.Equal(t, Code(8), second)
}

func TestIssueExhaustion(t *testing.T) {
	r := NewRegistry(WithSpace(3), WithGenerator(fixedGenerator{idx: 0}))
	for i := 0; i < 3; i++ {
		_, err := r.Issue()
		require.NoError(t, err)
	}

	_, err := r.Issue()
	var exhausted *ExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Space)
}

func TestIssueGeneratorError(t *testing.T) {
	r := NewRegistry(WithGenerator(failingGenerator{}))
	_, err := r.Issue()
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestReclaimIsIdempotentAndAllowsReuse(t *testing.T) {
	r := NewRegistry(WithSpace(1), WithGenerator(fixedGenerator{idx: 0}))

	id, err := r.Issue()
	require.NoError(t, err)
	assert.True(t, r.IsTaken(id))

	r.Reclaim(id)
	r.Reclaim(id)
	r.Reclaim("NOT-AN-ID")
	assert.False(t, r.IsTaken(id))

	again, err := r.Issue()
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		_, err := r.Issue()
		require.NoError(t, err)
	}
	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestResetKeepsListedIDs(t *testing.T) {
	r := NewRegistry()
	keep, err := r.Issue()
	require.NoError(t, err)
	drop, err := r.Issue()
	require.NoError(t, err)

	r.Reset(keep, "NEVER-ISSUED-01")
	assert.True(t, r.IsTaken(keep))
	assert.False(t, r.IsTaken(drop))
	assert.Equal(t, 1, r.Len())
}

func TestCodeCoversSpace(t *testing.T) {
	assert.Equal(t, 250000, Space)
	assert.Equal(t, "QUICK-FROG-00", Code(0))
	assert.Equal(t, "QUICK-FROG-99", Code(99))
	assert.Equal(t, "QUICK-TIGER-00", Code(100))
	assert.Equal(t, "WISE-WOODS-99", Code(Space-1))
}

func TestNormalizeAndValidate(t *testing.T) {
	assert.Equal(t, "CALM-RIVER-07", Normalize("  calm-river-07 "))
	assert.True(t, Validate("CALM-RIVER-07"))
	assert.False(t, Validate("CALM-RIVER"))
	assert.False(t, Validate("CALM--07"))
}
