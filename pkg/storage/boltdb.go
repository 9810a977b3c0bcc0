package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/meshroute/meshroute/pkg/types"
)

var (
	// Bucket names
	bucketPathHealth       = []byte("path_health")
	bucketFailoverPolicies = []byte("failover_policies")
	bucketFailoverEvents   = []byte("failover_events")
)

// BoltStore implements Store using BoltDB.
//
// Key layouts:
//
//	path_health:       pathID(8,BE) ++ unixNano(8,BE)           -> PathHealth JSON
//	failover_policies: policyID(8,BE)                           -> FailoverPolicy JSON
//	failover_events:   policyID(8,BE) ++ unixNano(8,BE) ++ seq  -> FailoverEvent JSON
//
// Big-endian fixed-width keys make time-window queries a single cursor
// range scan under the id prefix.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "meshroute.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketPathHealth,
			bucketFailoverPolicies,
			bucketFailoverEvents,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func u64Key(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func timeKey(prefix uint64, ts time.Time) []byte {
	// The zero time (and anything pre-1970) has a negative UnixNano,
	// which would wrap the unsigned key past every real timestamp.
	// Clamp so a zero since scans from the start of history.
	ns := ts.UnixNano()
	if ts.IsZero() || ns < 0 {
		ns = 0
	}
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], prefix)
	binary.BigEndian.PutUint64(b[8:], uint64(ns))
	return b
}

// AppendPathHealth writes one health snapshot. Existing records are
// never rewritten: the key carries the check timestamp.
func (s *BoltStore) AppendPathHealth(h types.PathHealth) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPathHealth)
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return b.Put(timeKey(uint64(h.PathID), h.LastChecked), data)
	})
}

// PathHealthRange returns persisted snapshots for a path within
// [since, until], ordered by timestamp ascending.
func (s *BoltStore) PathHealthRange(pathID types.PathID, since, until time.Time) ([]types.PathHealth, error) {
	var out []types.PathHealth
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPathHealth).Cursor()
		start := timeKey(uint64(pathID), since)
		end := timeKey(uint64(pathID), until)

		for k, v := c.Seek(start); k != nil && bytes.Compare(k[:16], end) <= 0; k, v = c.Next() {
			if binary.BigEndian.Uint64(k[:8]) != uint64(pathID) {
				break
			}
			var h types.PathHealth
			if err := json.Unmarshal(v, &h); err != nil {
				return fmt.Errorf("corrupt health record: %w", err)
			}
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

// SaveFailoverPolicy upserts a policy definition.
func (s *BoltStore) SaveFailoverPolicy(p *types.FailoverPolicy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFailoverPolicies)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put(u64Key(p.ID), data)
	})
}

// GetFailoverPolicy loads one policy by id.
func (s *BoltStore) GetFailoverPolicy(id uint64) (*types.FailoverPolicy, error) {
	var policy types.FailoverPolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFailoverPolicies).Get(u64Key(id))
		if data == nil {
			return fmt.Errorf("failover policy not found: %d", id)
		}
		return json.Unmarshal(data, &policy)
	})
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// ListFailoverPolicies returns all stored policies.
func (s *BoltStore) ListFailoverPolicies() ([]*types.FailoverPolicy, error) {
	var policies []*types.FailoverPolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailoverPolicies).ForEach(func(k, v []byte) error {
			var p types.FailoverPolicy
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			policies = append(policies, &p)
			return nil
		})
	})
	return policies, err
}

// DeleteFailoverPolicy removes a policy definition. Events recorded
// under the policy are retained: the audit log is append-only.
func (s *BoltStore) DeleteFailoverPolicy(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailoverPolicies).Delete(u64Key(id))
	})
}

// AppendFailoverEvent writes one audit record.
func (s *BoltStore) AppendFailoverEvent(e *types.FailoverEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFailoverEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		// seq suffix keeps same-nanosecond events distinct
		key := make([]byte, 24)
		copy(key, timeKey(e.PolicyID, e.Timestamp))
		binary.BigEndian.PutUint64(key[16:], seq)

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// FailoverEventsRange returns events for a policy within [since, until],
// ordered by timestamp ascending.
func (s *BoltStore) FailoverEventsRange(policyID uint64, since, until time.Time) ([]*types.FailoverEvent, error) {
	var out []*types.FailoverEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFailoverEvents).Cursor()
		start := timeKey(policyID, since)
		end := timeKey(policyID, until)

		for k, v := c.Seek(start); k != nil && bytes.Compare(k[:16], end) <= 0; k, v = c.Next() {
			if binary.BigEndian.Uint64(k[:8]) != policyID {
				break
			}
			var e types.FailoverEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt event record: %w", err)
			}
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}
