package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// Badger is an overlay backed by its own Badger v3 directory.
type Badger struct {
	db     *badger.DB
	dir    string
	sealer *Sealer
	logger *slog.Logger

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func openBadger(_ context.Context, cfg Config, name string, seed map[string]string) (*Badger, error) {
	dir := filepath.Join(cfg.Dir, name)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("overlay: clear %s: %w", name, err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: cfg.Logger.With("overlay", name)}
	opts.SyncWrites = false
	opts.DetectConflicts = false
	opts.NumMemtables = 1
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.BlockCacheSize = 1 << 20
	opts.IndexCacheSize = 1 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("overlay: open %s: %w", name, err)
	}

	b := &Badger{
		db:     db,
		dir:    dir,
		sealer: cfg.Sealer,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.BadgerGCInterval > 0 {
		go b.gcLoop(cfg.BadgerGCInterval)
	} else {
		close(b.doneCh)
	}

	if len(seed) > 0 {
		wb := db.NewWriteBatch()
		for k, v := range seed {
			val, err := b.seal(k, v)
			if err != nil {
				wb.Cancel()
				_ = b.Remove()
				return nil, err
			}
			if err := wb.Set([]byte(k), val); err != nil {
				wb.Cancel()
				_ = b.Remove()
				return nil, fmt.Errorf("overlay: seed %s: %w", name, err)
			}
		}
		if err := wb.Flush(); err != nil {
			_ = b.Remove()
			return nil, fmt.Errorf("overlay: seed %s: %w", name, err)
		}
	}

	return b, nil
}

// Name returns the directory name.
func (b *Badger) Name() string {
	return filepath.Base(b.dir)
}

// Get returns the value for key.
func (b *Badger) Get(_ context.Context, key string) (string, bool, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, b.wrap(err)
	}
	v, err := b.open(key, raw)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Put stores key=value.
func (b *Badger) Put(_ context.Context, key, value string) error {
	val, err := b.seal(key, value)
	if err != nil {
		return err
	}
	return b.wrap(b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	}))
}

// Delete removes key.
func (b *Badger) Delete(_ context.Context, key string) (bool, error) {
	found := false
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return txn.Delete([]byte(key))
	})
	return found, b.wrap(err)
}

// All returns the whole mapping.
func (b *Badger) All(_ context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			v, err := b.open(key, raw)
			if err != nil {
				return err
			}
			out[key] = v
		}
		return nil
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return out, nil
}

// Remove closes the database and deletes its directory.
func (b *Badger) Remove() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		if cerr := b.db.Close(); cerr != nil {
			err = fmt.Errorf("overlay: close %s: %w", b.Name(), cerr)
		}
		if rerr := os.RemoveAll(b.dir); rerr != nil && err == nil {
			err = fmt.Errorf("overlay: remove %s: %w", b.Name(), rerr)
		}
	})
	return err
}

// gcLoop runs periodic value-log garbage collection.
func (b *Badger) gcLoop(interval time.Duration) {
	defer close(b.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				if err := b.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
						b.logger.Warn("overlay gc failed", "overlay", b.Name(), "error", err)
					}
					break
				}
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Badger) seal(key, value string) ([]byte, error) {
	if b.sealer == nil {
		return []byte(value), nil
	}
	out, err := b.sealer.Seal([]byte(value), []byte(key))
	if err != nil {
		return nil, fmt.Errorf("overlay: seal %s: %w", b.Name(), err)
	}
	return out, nil
}

func (b *Badger) open(key string, raw []byte) (string, error) {
	if b.sealer == nil {
		return string(raw), nil
	}
	plain, err := b.sealer.Open(raw, []byte(key))
	if err != nil {
		return "", fmt.Errorf("overlay: open %s: %w", b.Name(), err)
	}
	return string(plain), nil
}

func (b *Badger) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return fmt.Errorf("overlay: %s: %w", b.Name(), err)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
// Badger is chatty at info level, so info is demoted to debug.
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
