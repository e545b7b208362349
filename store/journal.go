// Package store persists a client's speculative state between runs, so
// edits made offline survive a restart and are re-sent on reconnect.
package store

import (
	"encoding/binary"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/driftlabs/scopesync/scope"
)

var (
	pendingBucket = []byte("pending")
	metaBucket    = []byte("meta")
	snapshotKey   = []byte("snapshot")
)

// Journal is a bbolt-backed record of pending transactions plus the last
// checkpointed graph snapshot.
type Journal struct {
	db *bolt.DB
}

// Entry is one persisted pending transaction.
type Entry struct {
	Seq       int64
	Fragments []scope.Fragment
}

// Open opens or creates the journal file.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pendingBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a pending transaction under its sequence number.
func (j *Journal) Record(seq int64, fragments []scope.Fragment) error {
	data, err := json.Marshal(fragments)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Put(seqKey(seq), data)
	})
}

// Discard drops the pending transaction with the given sequence.
func (j *Journal) Discard(seq int64) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(seqKey(seq))
	})
}

// Reset drops every pending transaction.
func (j *Journal) Reset() error {
	return j.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(pendingBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(pendingBucket)
		return err
	})
}

// Checkpoint stores the current graph snapshot.
func (j *Journal) Checkpoint(snap scope.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(snapshotKey, data)
	})
}

// LastSnapshot returns the most recent checkpoint, if one exists.
func (j *Journal) LastSnapshot() (scope.Snapshot, bool, error) {
	var snap scope.Snapshot
	var found bool
	err := j.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metaBucket).Get(snapshotKey)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &snap)
	})
	return snap, found, err
}

// Pending returns the persisted pending transactions in sequence order.
// Big-endian keys keep bbolt's iteration order equal to sequence order.
func (j *Journal) Pending() ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(k, v []byte) error {
			var fragments []scope.Fragment
			if err := json.Unmarshal(v, &fragments); err != nil {
				return err
			}
			entries = append(entries, Entry{
				Seq:       int64(binary.BigEndian.Uint64(k)),
				Fragments: fragments,
			})
			return nil
		})
	})
	return entries, err
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}
