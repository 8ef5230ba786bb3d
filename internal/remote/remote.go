// Package remote adapts the FTP server holding the 10-minute CSV drops
// into a minimal lister/fetcher the syncer can drive. Connection retry
// policy lives here; everything above it sees either a working session or
// a terminal error.
package remote

import (
	"errors"
	"fmt"
	"time"
)

// Source is the remote boundary the syncer runs against: a flat directory
// of CSV files that can be listed and fetched one at a time.
type Source interface {
	// Connect establishes the session. It must be called before List or
	// Fetch and may retry internally.
	Connect() error
	// List returns the names of the CSV files in the remote working
	// directory (flat, no recursion).
	List() ([]string, error)
	// Fetch downloads one file's full content.
	Fetch(name string) ([]byte, error)
	// Close releases the session. Best effort; errors are swallowed.
	Close()
}

// ErrMissingCredentials means FTP_HOST, FTP_USER, or FTP_PASS is unset.
// This is a configuration error and is never retried.
var ErrMissingCredentials = errors.New("FTP_HOST/FTP_USER/FTP_PASS must be set")

// ConnectError reports that every connection attempt failed. Err is the
// last underlying cause.
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ftp connect failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// sleeper lets tests observe retry pacing without real delays.
type sleeper func(time.Duration)
