package ghap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calm/internal/errs"
	"calm/internal/metadata"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	db, err := metadata.Open(filepath.Join(t.TempDir(), "calm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func startParams(session string) StartParams {
	return StartParams{
		SessionID:  session,
		Domain:     "debugging",
		Strategy:   "systematic-elimination",
		Goal:       "fix port collision",
		Hypothesis: "stale daemon",
		Action:     "kill pid",
		Prediction: "port frees",
	}
}

func TestStartRejectsInvalidDomain(t *testing.T) {
	m := newTestMachine(t)
	p := startParams("s1")
	p.Domain = "not-a-domain"
	_, err := m.Start(context.Background(), p)
	require.NotNil(t, err)
	assert.Equal(t, errs.ValidationError, err.Type)
}

func TestStartThenSecondStartFailsActiveExists(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.Start(context.Background(), startParams("s1"))
	require.Nil(t, err)

	_, err2 := m.Start(context.Background(), startParams("s1"))
	require.NotNil(t, err2)
	assert.Equal(t, errs.ActiveExists, err2.Type)
}

func TestUpdateRequiresAtLeastOneField(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.Start(context.Background(), startParams("s1"))
	require.Nil(t, err)

	updateErr := m.Update(context.Background(), "s1", UpdateParams{})
	require.NotNil(t, updateErr)
	assert.Equal(t, errs.ValidationError, updateErr.Type)
}

func TestResolveFalsifiedWithoutSurpriseFails(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.Start(context.Background(), startParams("s1"))
	require.Nil(t, err)

	_, resolveErr := m.Resolve(context.Background(), ResolveParams{
		SessionID: "s1", Status: "falsified", Result: "nope",
	})
	require.NotNil(t, resolveErr)
	assert.Equal(t, errs.ValidationError, resolveErr.Type)
}

func TestResolveConfirmedFirstTryIsGold(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.Start(context.Background(), startParams("s1"))
	require.Nil(t, err)

	resolved, resolveErr := m.Resolve(context.Background(), ResolveParams{
		SessionID: "s1", Status: "confirmed", Result: "fixed",
	})
	require.Nil(t, resolveErr)
	assert.Equal(t, "gold", resolved.ConfidenceTier)
}

func TestResolveConfirmedAfterIterationIsSilver(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.Start(context.Background(), startParams("s1"))
	require.Nil(t, err)

	hyp := "new hypothesis"
	updateErr := m.Update(context.Background(), "s1", UpdateParams{Hypothesis: &hyp})
	require.Nil(t, updateErr)

	resolved, resolveErr := m.Resolve(context.Background(), ResolveParams{
		SessionID: "s1", Status: "confirmed", Result: "fixed",
	})
	require.Nil(t, resolveErr)
	assert.Equal(t, "silver", resolved.ConfidenceTier)
}

func TestResolveFalsifiedWithLessonIsBronze(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.Start(context.Background(), startParams("s1"))
	require.Nil(t, err)

	resolved, resolveErr := m.Resolve(context.Background(), ResolveParams{
		SessionID: "s1", Status: "falsified", Result: "nope",
		Surprise: "it was the kernel, not the daemon", LessonTakeaway: "check the kernel first",
	})
	require.Nil(t, resolveErr)
	assert.Equal(t, "bronze", resolved.ConfidenceTier)
}

func TestResolveAbandonedIsAbandoned(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.Start(context.Background(), startParams("s1"))
	require.Nil(t, err)

	resolved, resolveErr := m.Resolve(context.Background(), ResolveParams{
		SessionID: "s1", Status: "abandoned", Result: "gave up",
	})
	require.Nil(t, resolveErr)
	assert.Equal(t, "abandoned", resolved.ConfidenceTier)
}

func TestShouldCheckInRespectsFrequency(t *testing.T) {
	assert.True(t, ShouldCheckIn(5, 5))
	assert.False(t, ShouldCheckIn(4, 5))
	assert.True(t, ShouldCheckIn(10, 5))
	assert.False(t, ShouldCheckIn(5, 0))
}

func TestToolCountFlowThroughMachine(t *testing.T) {
	m := newTestMachine(t)
	n, err := m.IncrementToolCount(context.Background(), "s1")
	require.Nil(t, err)
	assert.Equal(t, 1, n)

	resetErr := m.ResetToolCount(context.Background(), "s1")
	require.Nil(t, resetErr)

	n, err = m.IncrementToolCount(context.Background(), "s1")
	require.Nil(t, err)
	assert.Equal(t, 1, n)
}
