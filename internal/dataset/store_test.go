package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jerrybase-cli/internal/model"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	ds, err := Load[model.DetailRecord](filepath.Join(t.TempDir(), "event_data_detailed.json"))
	require.NoError(t, err)
	assert.Zero(t, ds.Len())
	assert.Empty(t, ds.Buckets())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event_data_detailed.json")

	ds := New[model.DetailRecord]()
	ds.Merge("1975", model.DetailRecord{
		BasicRecord: basic("19750813_42", "1975-08-13"),
		Musicians:   []model.Musician{{Name: "Jerry Garcia", Instrument: "guitar"}},
		Notes:       []string{"FM broadcast"},
		DateVerification: model.DateVerification{
			Confidence: model.DateConfirmed,
		},
		EnrichedAt: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
	})
	ds.AddBucket(PreBucket)

	require.NoError(t, Save(ds, path))

	loaded, err := Load[model.DetailRecord](path)
	require.NoError(t, err)
	assert.Equal(t, []string{PreBucket, "1975"}, loaded.Buckets())
	require.Len(t, loaded.Records("1975"), 1)
	assert.Equal(t, ds.Records("1975")[0], loaded.Records("1975")[0])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSave_InterruptedWriteLeavesPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event_data.json")

	prev := New[model.BasicRecord]()
	prev.Merge("1975", basic("19750813_42", "1975-08-13"))
	require.NoError(t, Save(prev, path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	next := prev.Clone()
	next.Merge("1976", basic("19760605_9", "1976-06-05"))

	// Only the temp-write step runs, as if the process died before rename.
	tmp, err := writeTemp(next, path)
	require.NoError(t, err)
	assert.FileExists(t, tmp)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	loaded, err := Load[model.BasicRecord](path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestSave_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "event_data.json")

	err := Save(New[model.BasicRecord](), path)
	require.Error(t, err)

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "create temp", pe.Op)
	assert.NoFileExists(t, path)
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1970": [`), 0o644))

	_, err := Load[model.BasicRecord](path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset: parse")
}
