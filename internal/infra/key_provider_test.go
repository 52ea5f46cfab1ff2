package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, dataDir string)
		testFn func(t *testing.T, provider *FileKeyProvider)
	}{
		{
			name: "no key file yet",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				assert.False(t, provider.KeyExists())
				_, err := provider.GetKey()
				assert.Error(t, err)
			},
		},
		{
			name: "stored key round trips with owner-only permissions",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := NewStoreKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))

				info, err := os.Stat(provider.Path())
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

				got, err := provider.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, got)
			},
		},
		{
			name: "rejects keys of the wrong size",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				assert.Error(t, provider.StoreKey([]byte("short")))
				assert.False(t, provider.KeyExists())
			},
		},
		{
			name: "corrupt key file",
			setup: func(t *testing.T, dataDir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dataDir, storeKeyFileName), []byte("%%%"), 0600))
			},
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				_, err := provider.GetKey()
				assert.Error(t, err)
			},
		},
		{
			name: "tolerates trailing newline",
			setup: func(t *testing.T, dataDir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dataDir, storeKeyFileName),
					[]byte("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=\n"), 0600))
			},
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := provider.GetKey()
				require.NoError(t, err)
				assert.Len(t, key, storeKeySize)
			},
		},
		{
			name: "creates missing data directory",
			testFn: func(t *testing.T, _ *FileKeyProvider) {
				nested := NewFileKeyProvider(filepath.Join(t.TempDir(), "a", "b"))
				key, err := NewStoreKey()
				require.NoError(t, err)
				require.NoError(t, nested.StoreKey(key))
				assert.True(t, nested.KeyExists())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir := t.TempDir()
			if tt.setup != nil {
				tt.setup(t, dataDir)
			}
			tt.testFn(t, NewFileKeyProvider(dataDir))
		})
	}
}

func TestNewStoreKey_Unique(t *testing.T) {
	a, err := NewStoreKey()
	require.NoError(t, err)
	b, err := NewStoreKey()
	require.NoError(t, err)
	assert.Len(t, a, storeKeySize)
	assert.NotEqual(t, a, b)
}

func TestLoadOrCreateKey(t *testing.T) {
	provider := NewFileKeyProvider(t.TempDir())

	first, err := LoadOrCreateKey(provider)
	require.NoError(t, err)
	second, err := LoadOrCreateKey(provider)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
