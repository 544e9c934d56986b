package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketState = []byte("state")

var (
	keyToggle   = []byte("toggle")
	keyInstance = []byte("instance")
)

const DefaultLockTimeout = time.Second

// ErrBusy is returned when another process holds the database lock for
// longer than the lock timeout.
var ErrBusy = errors.New("state store busy")

type toggleRecord struct {
	Enabled   bool  `json:"enabled"`
	UpdatedAt int64 `json:"updated_at"`
}

type Instance struct {
	PID       int   `json:"pid"`
	StartedAt int64 `json:"started_at"`
}

// Store persists the lyric toggle and the pid of the running engine. The
// database is opened per operation so the CLI and a running engine can
// share one file.
type Store struct {
	path    string
	timeout time.Duration
	now     func() time.Time
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("state path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{path: path, timeout: DefaultLockTimeout, now: time.Now}, nil
}

func (s *Store) Path() string { return s.path }

// Enabled reports the persisted toggle. A store that was never written
// reports enabled.
func (s *Store) Enabled() (bool, error) {
	enabled := true
	err := s.view(func(b *bolt.Bucket) error {
		raw := b.Get(keyToggle)
		if raw == nil {
			return nil
		}
		var rec toggleRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode toggle: %w", err)
		}
		enabled = rec.Enabled
		return nil
	})
	return enabled, err
}

func (s *Store) SetEnabled(enabled bool) error {
	return s.put(keyToggle, toggleRecord{Enabled: enabled, UpdatedAt: s.now().Unix()})
}

// Register records the pid of the running engine.
func (s *Store) Register(pid int) error {
	return s.put(keyInstance, Instance{PID: pid, StartedAt: s.now().Unix()})
}

// Unregister clears the instance record if it still belongs to pid.
func (s *Store) Unregister(pid int) error {
	return s.update(func(b *bolt.Bucket) error {
		raw := b.Get(keyInstance)
		if raw == nil {
			return nil
		}
		var inst Instance
		if err := json.Unmarshal(raw, &inst); err != nil || inst.PID == pid {
			return b.Delete(keyInstance)
		}
		return nil
	})
}

// Instance returns the registered engine, if any.
func (s *Store) Instance() (Instance, bool, error) {
	var (
		inst  Instance
		found bool
	)
	err := s.view(func(b *bolt.Bucket) error {
		raw := b.Get(keyInstance)
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &inst); err != nil {
			return fmt.Errorf("decode instance: %w", err)
		}
		found = true
		return nil
	})
	return inst, found, err
}

func (s *Store) put(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.update(func(b *bolt.Bucket) error {
		return b.Put(key, raw)
	})
}

func (s *Store) view(fn func(*bolt.Bucket) error) error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

func (s *Store) update(fn func(*bolt.Bucket) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketState)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func (s *Store) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("open %s: %w", s.path, ErrBusy)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	return db, nil
}
