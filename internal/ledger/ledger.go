// Package ledger persists the set of remote file names that have already
// been merged, so repeated runs only ingest new data. On disk it is a
// pretty-printed, sorted JSON array of strings; the deterministic encoding
// keeps the committed artifact stable across runs.
package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// Ledger is an ordered set of remote file names backed by a JSON file.
// A single run owns the ledger exclusively; there is no locking.
type Ledger struct {
	path  string
	names map[string]struct{}
}

// Load reads the ledger at path. A missing, unreadable, or malformed file
// yields an empty ledger rather than an error: re-processing is always
// preferable to refusing to run.
func Load(path string) *Ledger {
	l := &Ledger{path: path, names: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if err != nil {
		return l
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return l
	}
	for _, n := range names {
		l.names[n] = struct{}{}
	}
	return l
}

// Contains reports whether name has already been merged.
func (l *Ledger) Contains(name string) bool {
	_, ok := l.names[name]
	return ok
}

// Add records name as merged. Duplicate adds are no-ops.
func (l *Ledger) Add(name string) {
	l.names[name] = struct{}{}
}

// Len returns the number of recorded names.
func (l *Ledger) Len() int {
	return len(l.names)
}

// Names returns the recorded names in ascending order.
func (l *Ledger) Names() []string {
	names := make([]string, 0, len(l.names))
	for n := range l.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Save writes the full set back to disk, replacing the previous content.
// The write goes to a temp file in the same directory followed by a rename,
// so a crash mid-write leaves the previous valid ledger in place.
func (l *Ledger) Save() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(l.Names(), "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), l.path)
}
