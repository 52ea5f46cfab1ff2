package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

func TestEncryptedRunStore_SaveAndGet(t *testing.T) {
	store, _ := newTestRunStore(t)
	base := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name string
		run  domain.RunRecord
	}{
		{
			name: "successful execution",
			run:  newRun(base, 0),
		},
		{
			name: "failed dry run with error",
			run: func() domain.RunRecord {
				r := newRun(base, time.Minute)
				r.Success = false
				r.DryRun = true
				r.LoopsCompleted = 0
				r.Error = "move cursor to 1,2: injected failure"
				return r
			}(),
		},
		{
			name: "recording still open",
			run: domain.RunRecord{
				ID:          uuid.NewString(),
				Kind:        domain.RunRecording,
				StartedAt:   base.Add(2 * time.Minute),
				ActionCount: 12,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.SaveRun(tt.run))

			got, err := store.GetRun(tt.run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.run.ID, got.ID)
			assert.Equal(t, tt.run.Kind, got.Kind)
			assert.True(t, tt.run.StartedAt.Equal(got.StartedAt))
			assert.True(t, tt.run.FinishedAt.Equal(got.FinishedAt))
			assert.Equal(t, tt.run.Success, got.Success)
			assert.Equal(t, tt.run.DryRun, got.DryRun)
			assert.Equal(t, tt.run.ActionCount, got.ActionCount)
			assert.Equal(t, tt.run.Loops, got.Loops)
			assert.Equal(t, tt.run.LoopsCompleted, got.LoopsCompleted)
			assert.Equal(t, tt.run.Transitions, got.Transitions)
			assert.Equal(t, tt.run.Error, got.Error)
			assert.Equal(t, tt.run.Duration(), got.Duration())
		})
	}
}

func TestEncryptedRunStore_SaveReplaces(t *testing.T) {
	store, _ := newTestRunStore(t)
	run := newRun(time.Now(), 0)
	run.FinishedAt = time.Time{}
	run.Success = false
	require.NoError(t, store.SaveRun(run))

	run.FinishedAt = run.StartedAt.Add(time.Second)
	run.Success = true
	require.NoError(t, store.SaveRun(run))

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, time.Second, runs[0].Duration())
}

func TestEncryptedRunStore_RejectsInvalidID(t *testing.T) {
	store, _ := newTestRunStore(t)
	err := store.SaveRun(domain.RunRecord{ID: "run-1", Kind: domain.RunExecution, StartedAt: time.Now()})
	assert.Error(t, err)
}

func TestEncryptedRunStore_GetMissing(t *testing.T) {
	store, _ := newTestRunStore(t)
	_, err := store.GetRun(uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEncryptedRunStore_ListNewestFirst(t *testing.T) {
	store, _ := newTestRunStore(t)
	base := time.Unix(1_700_000_000, 0)

	var ids []string
	for i := range 5 {
		r := newRun(base, time.Duration(i)*time.Minute)
		ids = append(ids, r.ID)
		require.NoError(t, store.SaveRun(r))
	}

	tests := []struct {
		name    string
		limit   int
		wantIDs []string
	}{
		{name: "limited", limit: 2, wantIDs: []string{ids[4], ids[3]}},
		{name: "unlimited", limit: 0, wantIDs: []string{ids[4], ids[3], ids[2], ids[1], ids[0]}},
		{name: "limit above count", limit: 50, wantIDs: []string{ids[4], ids[3], ids[2], ids[1], ids[0]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(tt.limit)
			require.NoError(t, err)
			var got []string
			for _, r := range runs {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.wantIDs, got)
		})
	}
}

func TestEncryptedRunStore_Instance(t *testing.T) {
	store, _ := newTestRunStore(t)

	inst, err := store.GetInstance()
	require.NoError(t, err)
	assert.Nil(t, inst)

	started := time.Now().Add(-time.Minute)
	require.NoError(t, store.RegisterInstance(domain.Instance{PID: 4321, StartedAt: started, AppVersion: "1.2.0"}))

	inst, err = store.GetInstance()
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, 4321, inst.PID)
	assert.Equal(t, "1.2.0", inst.AppVersion)
	assert.True(t, started.Equal(inst.StartedAt))
	assert.False(t, inst.LastHeartbeat.IsZero())

	require.NoError(t, store.UpdateHeartbeat(4321))
	assert.ErrorIs(t, store.UpdateHeartbeat(9999), domain.ErrNotFound)

	// A newer session replaces the marker.
	require.NoError(t, store.RegisterInstance(domain.Instance{PID: 5555}))
	inst, err = store.GetInstance()
	require.NoError(t, err)
	assert.Equal(t, 5555, inst.PID)

	// Clearing with a stale pid leaves the live marker in place.
	require.NoError(t, store.ClearInstance(4321))
	inst, err = store.GetInstance()
	require.NoError(t, err)
	require.NotNil(t, inst)

	require.NoError(t, store.ClearInstance(5555))
	inst, err = store.GetInstance()
	require.NoError(t, err)
	assert.Nil(t, inst)
}

func TestEncryptedRunStore_Persistence(t *testing.T) {
	dataDir := t.TempDir()
	key, err := NewStoreKey()
	require.NoError(t, err)

	store, err := NewEncryptedRunStore(dataDir, key)
	require.NoError(t, err)
	run := newRun(time.Now(), 0)
	require.NoError(t, store.SaveRun(run))
	require.NoError(t, store.Close())

	reopened, err := NewEncryptedRunStore(dataDir, key)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func TestEncryptedRunStore_WrongKeyFails(t *testing.T) {
	dataDir := t.TempDir()
	key, err := NewStoreKey()
	require.NoError(t, err)

	store, err := NewEncryptedRunStore(dataDir, key)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(newRun(time.Now(), 0)))
	require.NoError(t, store.Close())

	other, err := NewStoreKey()
	require.NoError(t, err)
	_, err = NewEncryptedRunStore(dataDir, other)
	assert.Error(t, err)
}

func TestEncryptedRunStore_FileIsEncrypted(t *testing.T) {
	store, dataDir := newTestRunStore(t)
	run := newRun(time.Now(), 0)
	run.Error = "plaintext-marker-should-not-appear"
	require.NoError(t, store.SaveRun(run))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(filepath.Join(dataDir, runStoreDBName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "SQLite format 3")
	assert.NotContains(t, string(raw), "plaintext-marker-should-not-appear")
}

func TestOpenRunStore_CreatesKey(t *testing.T) {
	dataDir := t.TempDir()
	keys := NewFileKeyProvider(dataDir)
	require.False(t, keys.KeyExists())

	store, err := OpenRunStore(dataDir, keys)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(newRun(time.Now(), 0)))
	require.NoError(t, store.Close())
	assert.True(t, keys.KeyExists())

	// Reopening with the same provider reads the same key.
	store, err = OpenRunStore(dataDir, keys)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
