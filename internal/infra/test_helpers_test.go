package infra

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// newTestRunStore creates an encrypted run store in a temp directory.
func newTestRunStore(t *testing.T) (*EncryptedRunStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := NewStoreKey()
	require.NoError(t, err)

	store, err := NewEncryptedRunStore(dataDir, key)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, dataDir
}

// newRun returns a finished execution record started at base+offset.
func newRun(base time.Time, offset time.Duration) domain.RunRecord {
	started := base.Add(offset)
	return domain.RunRecord{
		ID:             uuid.NewString(),
		Kind:           domain.RunExecution,
		StartedAt:      started,
		FinishedAt:     started.Add(2 * time.Second),
		Success:        true,
		ActionCount:    3,
		Loops:          2,
		LoopsCompleted: 2,
		Transitions:    2,
	}
}
