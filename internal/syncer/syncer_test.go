package syncer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rtmksync/internal/config"
	"rtmksync/internal/remote"
)

// fakeSource is an in-memory remote.Source.
type fakeSource struct {
	files      map[string][]byte
	connectErr error
	listErr    error
	fetchErr   map[string]error
	fetches    []string
	closed     bool
}

func (f *fakeSource) Connect() error { return f.connectErr }

func (f *fakeSource) List() ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for n := range f.files {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeSource) Fetch(name string) ([]byte, error) {
	f.fetches = append(f.fetches, name)
	if err, ok := f.fetchErr[name]; ok {
		return nil, err
	}
	data, ok := f.files[name]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (f *fakeSource) Close() { f.closed = true }

var _ remote.Source = (*fakeSource)(nil)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("START_FROM_DATE", "2025-11-01")
	cfg, err := config.Load("")
	require.NoError(t, err)

	root := t.TempDir()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.RawDir = filepath.Join(root, "raw")
	cfg.LogDir = filepath.Join(root, "log")
	cfg.StateFile = filepath.Join(root, "state", "downloaded_files.json")
	return cfg
}

func newRunner(cfg config.Config, src remote.Source) *Runner {
	r := New(cfg, src, zap.NewNop())
	r.now = func() time.Time { return time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func ledgerNames(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal(data, &names))
	return names
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{files: map[string][]byte{
		"A_20251219T170000.CSV": []byte("a,b\n1,2\n"),
		"B_20251105080000.CSV":  []byte("a,b\n3,4\n5,6\n"),
	}}

	rep, err := newRunner(cfg, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Merged: 2, Skipped: 0}, rep)

	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}},
		readRows(t, filepath.Join(cfg.DataDir, "2025-12.csv")))
	assert.Equal(t, [][]string{{"a", "b"}, {"3", "4"}, {"5", "6"}},
		readRows(t, filepath.Join(cfg.DataDir, "2025-11.csv")))

	assert.Equal(t,
		[]string{"A_20251219T170000.CSV", "B_20251105080000.CSV"},
		ledgerNames(t, cfg.StateFile))

	// Raw copies are archived before merging.
	for name := range src.files {
		_, err := os.Stat(filepath.Join(cfg.RawDir, name))
		assert.NoError(t, err)
	}

	assert.True(t, src.closed)
	// Deterministic ascending fetch order regardless of listing order.
	assert.Equal(t, []string{"A_20251219T170000.CSV", "B_20251105080000.CSV"}, src.fetches)
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{files: map[string][]byte{
		"A_20251219T170000.CSV": []byte("a,b\n1,2\n"),
	}}

	runner := newRunner(cfg, src)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(cfg.DataDir, "2025-12.csv"))
	require.NoError(t, err)
	firstLedger, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)

	rep, err := newRunner(cfg, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep, "second run has nothing to do")

	again, err := os.ReadFile(filepath.Join(cfg.DataDir, "2025-12.csv"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(again), "no duplicate rows on re-run")

	againLedger, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	assert.Equal(t, string(firstLedger), string(againLedger))
}

func TestRunFailureIsolation(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{
		files: map[string][]byte{
			"A_20251105080000.CSV": []byte("a,b\n1,2\n"),
			"B_20251219T170000.CSV": []byte("a,b\n3,4\n"),
		},
		fetchErr: map[string]error{
			"B_20251219T170000.CSV": errors.New("boom"),
		},
	}

	rep, err := newRunner(cfg, src).Run(context.Background())
	require.NoError(t, err, "one bad file must not abort the run")
	assert.Equal(t, Report{Merged: 1, Skipped: 1}, rep)

	// Ledger holds only the file that merged; it is still saved.
	assert.Equal(t, []string{"A_20251105080000.CSV"}, ledgerNames(t, cfg.StateFile))

	// The good file's partition reflects its data; the bad one's is untouched.
	assert.Len(t, readRows(t, filepath.Join(cfg.DataDir, "2025-11.csv")), 2)
	_, statErr := os.Stat(filepath.Join(cfg.DataDir, "2025-12.csv"))
	assert.True(t, os.IsNotExist(statErr))

	assert.True(t, src.closed)
}

func TestRunNothingInScope(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{files: map[string][]byte{
		"A_20250101T000000.CSV": []byte("a,b\n1,2\n"), // before the window
		"garbage.csv":           []byte("a,b\n1,2\n"), // undecidable
	}}

	rep, err := newRunner(cfg, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)

	_, statErr := os.Stat(cfg.StateFile)
	assert.True(t, os.IsNotExist(statErr), "no ledger write when nothing was done")
	assert.True(t, src.closed)
}

func TestRunRebuild(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rebuild = true

	require.NoError(t, os.MkdirAll(cfg.DataDir, 0755))
	stale := filepath.Join(cfg.DataDir, "2025-12.csv")
	require.NoError(t, os.WriteFile(stale, []byte("a,b\nstale,row\n"), 0644))
	outside := filepath.Join(cfg.DataDir, "2025-10.csv")
	require.NoError(t, os.WriteFile(outside, []byte("a,b\nkeep,me\n"), 0644))

	src := &fakeSource{files: map[string][]byte{
		"A_20251219T170000.CSV": []byte("a,b\n1,2\n"),
	}}

	rep, err := newRunner(cfg, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Merged: 1}, rep)

	// In-scope month was rebuilt from scratch.
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, readRows(t, stale))
	// Month outside the scope set was untouched.
	assert.Equal(t, [][]string{{"a", "b"}, {"keep", "me"}}, readRows(t, outside))
}

func TestRunConnectFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{connectErr: &remote.ConnectError{Attempts: 3, Err: errors.New("refused")}}

	_, err := newRunner(cfg, src).Run(context.Background())
	require.Error(t, err)

	var ce *remote.ConnectError
	assert.True(t, errors.As(err, &ce))
}

func TestRunListFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{listErr: errors.New("550 denied")}

	_, err := newRunner(cfg, src).Run(context.Background())
	require.Error(t, err)
	assert.True(t, src.closed, "session released even on fatal listing error")
}

func TestRunInterruptStopsCleanly(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{files: map[string][]byte{
		"A_20251219T170000.CSV": []byte("a,b\n1,2\n"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newRunner(cfg, src).Run(ctx)
	require.NoError(t, err, "interruption is not an error")
	assert.Equal(t, Report{}, rep)

	// Interrupted runs do not persist the ledger.
	_, statErr := os.Stat(cfg.StateFile)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, src.closed)
}
