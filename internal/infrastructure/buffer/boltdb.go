package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store persists buffered commands in BoltDB until they can be replayed.
// Keys are job-id prefixed so commands against one job replay in the order
// they were issued.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "commands"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

// Enqueue stores a command under its per-job ordering key.
func (s *Store) Enqueue(cmd Command) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	cmd.normalize()
	cmd.bucketKey = []byte(buildKey(cmd))

	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(cmd.bucketKey, payload)
	})
}

// GetBatch returns up to limit commands without removing them.
func (s *Store) GetBatch(limit int) ([]Command, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var commands []Command
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil && len(commands) < limit; k, v = c.Next() {
			var cmd Command
			if err := json.Unmarshal(v, &cmd); err != nil {
				continue
			}
			cmd.bucketKey = append([]byte(nil), k...)
			commands = append(commands, cmd)
		}
		return nil
	})
	return commands, err
}

// Remove deletes a processed command.
func (s *Store) Remove(cmd Command) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if len(cmd.bucketKey) == 0 {
		cmd.bucketKey = []byte(buildKey(cmd))
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(cmd.bucketKey)
	})
}

// Requeue re-inserts a failed command with its retry count bumped. The
// original queue position is kept so per-job order survives retries.
func (s *Store) Requeue(cmd Command) error {
	cmd.Retries++
	return s.Enqueue(cmd)
}

// Size returns the number of buffered commands.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup removes commands that have been queued longer than the cutoff.
func (s *Store) Cleanup(olderThan time.Time) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cmd Command
			if err := json.Unmarshal(v, &cmd); err != nil {
				continue
			}
			if cmd.QueuedAt.Before(olderThan) {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes Bolt statistics for monitoring endpoints.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

func buildKey(cmd Command) string {
	return fmt.Sprintf("%s_%020d_%s", cmd.JobID, cmd.QueuedAt.UnixNano(), cmd.ID)
}
