// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package verify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var (
	checkpointsBucket = []byte("checkpoints")
	runsBucket        = []byte("runs")
)

// Record writes the report into the manifest database at dbPath, creating it
// if needed. The latest per-slot checkpoint digests land in "checkpoints",
// keyed by slot; the full report is appended to "runs", keyed by timestamp.
func (r *Report) Record(dbPath string) error {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		cb, err := tx.CreateBucketIfNotExists(checkpointsBucket)
		if err != nil {
			return err
		}
		for _, ci := range r.Checkpoints {
			v, err := json.Marshal(ci)
			if err != nil {
				return err
			}
			key := []byte(fmt.Sprintf("slot-%d", ci.Slot))
			if err := cb.Put(key, v); err != nil {
				return err
			}
		}

		rb, err := tx.CreateBucketIfNotExists(runsBucket)
		if err != nil {
			return err
		}
		v, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return rb.Put([]byte(r.When.Format(time.RFC3339Nano)), v)
	})
}

// LastRun reads back the most recent report from the manifest database.
func LastRun(dbPath string) (*Report, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var report *Report
	err = db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(runsBucket)
		if rb == nil {
			return fmt.Errorf("manifest has no recorded runs")
		}
		k, v := rb.Cursor().Last()
		if k == nil {
			return fmt.Errorf("manifest has no recorded runs")
		}
		report = &Report{}
		return json.Unmarshal(v, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
