package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// badgerConfig holds the knobs used when opening the directory store.
type badgerConfig struct {
	// Path is the database directory.  Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// Create allows Path to be created when it does not exist.
	Create bool
	// ReadOnly opens Path without the exclusive directory lock, so several
	// processes can serve the same index.  Path must already hold a
	// database.
	ReadOnly bool
	// Logger receives badger's internal log lines.  Nil silences them.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func openBadger(cfg badgerConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("index directory is required")
		}
		info, err := os.Stat(cfg.Path)
		switch {
		case errors.Is(err, os.ErrNotExist) && cfg.Create:
			if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
				return nil, fmt.Errorf("create index directory %s: %w", cfg.Path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, cfg.Path)
		case err != nil:
			return nil, fmt.Errorf("stat index directory %s: %w", cfg.Path, err)
		case !info.IsDir():
			return nil, fmt.Errorf("index path %s is not a directory", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
		if cfg.ReadOnly {
			// A read-only open cannot create the manifest.
			if _, err := os.Stat(filepath.Join(cfg.Path, badger.ManifestFilename)); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrEmptyIndex, cfg.Path)
			}
			opts = opts.WithReadOnly(true)
		}
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	return db, nil
}
