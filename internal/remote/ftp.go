package remote

import (
	"io"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"rtmksync/internal/config"
)

// FTP is the jlaffaye/ftp-backed Source. One instance owns at most one
// server session, scoped to a single run.
type FTP struct {
	cfg    config.Config
	logger *zap.Logger
	conn   *ftp.ServerConn
	sleep  sleeper
}

// NewFTP validates credentials and returns an unconnected FTP source.
// Missing credentials fail immediately, before any network I/O.
func NewFTP(cfg config.Config, logger *zap.Logger) (*FTP, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return nil, ErrMissingCredentials
	}
	return &FTP{cfg: cfg, logger: logger, sleep: time.Sleep}, nil
}

// Connect dials, logs in, and changes to the configured working directory,
// retrying up to the configured attempt count with a fixed sleep between
// attempts. Exhaustion yields a *ConnectError carrying the last cause.
func (f *FTP) Connect() error {
	var lastErr error
	attempts := f.cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		f.logger.Info("connecting to FTP",
			zap.String("host", f.cfg.Addr()),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts))

		conn, err := f.dial()
		if err == nil {
			f.conn = conn
			return nil
		}
		lastErr = err
		f.logger.Warn("FTP connect failed", zap.Error(err))
		f.sleep(f.cfg.RetrySleep())
	}
	return &ConnectError{Attempts: attempts, Err: lastErr}
}

func (f *FTP) dial() (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(f.cfg.Addr(), ftp.DialWithTimeout(f.cfg.ConnectTimeout()))
	if err != nil {
		return nil, err
	}
	if err := conn.Login(f.cfg.User, f.cfg.Pass); err != nil {
		_ = conn.Quit()
		return nil, err
	}
	if err := conn.ChangeDir(f.cfg.Dir); err != nil {
		_ = conn.Quit()
		return nil, err
	}
	return conn, nil
}

// List returns the names in the working directory that end in .csv,
// case-insensitively.
func (f *FTP) List() ([]string, error) {
	names, err := f.conn.NameList("")
	if err != nil {
		return nil, err
	}
	var csvs []string
	for _, n := range names {
		if strings.HasSuffix(strings.ToLower(n), ".csv") {
			csvs = append(csvs, n)
		}
	}
	return csvs, nil
}

// Fetch downloads one file's full content. The transfer deadline is
// separate from the connection timeout.
func (f *FTP) Fetch(name string) ([]byte, error) {
	resp, err := f.conn.Retr(name)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	if err := resp.SetDeadline(time.Now().Add(f.cfg.TransferTimeout())); err != nil {
		return nil, err
	}
	return io.ReadAll(resp)
}

// Close quits the session if one exists. Failures during close are
// swallowed.
func (f *FTP) Close() {
	if f.conn != nil {
		_ = f.conn.Quit()
		f.conn = nil
	}
}
