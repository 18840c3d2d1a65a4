package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

var (
	badgerLatestKey  = []byte("latest")
	badgerHistoryKey = []byte("history")
	badgerSeenPrefix = []byte("seen/")
)

// BadgerConfig holds configuration for the embedded store.
type BadgerConfig struct {
	// Path is ignored when InMemory is true.
	Path     string
	InMemory bool
	// Logger receives badger's internal logs; nil disables them.
	Logger *slog.Logger
}

// BadgerStore persists latest, the capped history (a single JSON array,
// newest first) and one key per fingerprint in an embedded BadgerDB.
type BadgerStore struct {
	db         *badger.DB
	maxHistory int
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
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

// OpenBadger opens the database described by cfg.
func OpenBadger(cfg BadgerConfig, maxHistory int) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	if maxHistory <= 0 {
		maxHistory = tracking.DefaultHistoryCap
	}
	return &BadgerStore{db: db, maxHistory: maxHistory}, nil
}

func (s *BadgerStore) SeedIfEmpty(_ context.Context, bootstrap tracking.Reading) (bool, error) {
	seeded := false
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{badgerLatestKey, badgerHistoryKey} {
			_, err := txn.Get(k)
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := writeReadings(txn, bootstrap, []tracking.Reading{bootstrap}); err != nil {
			return err
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, unavailable("seed", err)
	}
	return seeded, nil
}

func (s *BadgerStore) Append(_ context.Context, r tracking.Reading) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		history, err := readHistory(txn)
		if err != nil {
			return err
		}
		history = append([]tracking.Reading{r}, history...)
		if len(history) > s.maxHistory {
			history = history[:s.maxHistory]
		}
		return writeReadings(txn, r, history)
	})
	if err != nil {
		if errors.Is(err, ErrCorruptValue) {
			return err
		}
		return unavailable("append", err)
	}
	return nil
}

func (s *BadgerStore) Latest(context.Context) (tracking.Reading, bool, error) {
	var (
		r     tracking.Reading
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerLatestKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("%w: latest: %v", ErrCorruptValue, err)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrCorruptValue) {
			return tracking.Reading{}, false, err
		}
		return tracking.Reading{}, false, unavailable("get latest", err)
	}
	return r, found, nil
}

func (s *BadgerStore) History(_ context.Context, offset, limit int) ([]tracking.Reading, error) {
	offset = max(offset, 0)
	var history []tracking.Reading
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		history, err = readHistory(txn)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCorruptValue) {
			return nil, err
		}
		return nil, unavailable("get history", err)
	}

	if offset >= len(history) || limit <= 0 {
		return []tracking.Reading{}, nil
	}
	end := min(offset+limit, len(history))
	return history[offset:end], nil
}

func (s *BadgerStore) Seen(_ context.Context, fp tracking.Fingerprint) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(seenKey(fp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, unavailable("get fingerprint", err)
	}
	return found, nil
}

func (s *BadgerStore) Record(_ context.Context, fp tracking.Fingerprint) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seenKey(fp), nil)
	})
	if err != nil {
		return unavailable("set fingerprint", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func seenKey(fp tracking.Fingerprint) []byte {
	return append(append([]byte(nil), badgerSeenPrefix...), string(fp)...)
}

func readHistory(txn *badger.Txn) ([]tracking.Reading, error) {
	item, err := txn.Get(badgerHistoryKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var history []tracking.Reading
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &history); err != nil {
			return fmt.Errorf("%w: history: %v", ErrCorruptValue, err)
		}
		return nil
	})
	return history, err
}

func writeReadings(txn *badger.Txn, latest tracking.Reading, history []tracking.Reading) error {
	lv, err := json.Marshal(latest)
	if err != nil {
		return err
	}
	hv, err := json.Marshal(history)
	if err != nil {
		return err
	}
	if err := txn.Set(badgerLatestKey, lv); err != nil {
		return err
	}
	return txn.Set(badgerHistoryKey, hv)
}
