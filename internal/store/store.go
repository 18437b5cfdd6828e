package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/danvoulez/aurea/internal/logger"
	"github.com/danvoulez/aurea/internal/receipts"
)

// Store is the embedded single-writer transactional key-value store
// backing the ready/leased queues, receipts, and idempotency index.
type Store struct {
	db  *bolt.DB
	log zerolog.Logger
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures all five logical tables exist.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &Store{db: db, log: logger.Component(log, "store")}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// EnqueueWorkIdempotent implements §4.3's enqueue_work_idempotent.
func (s *Store) EnqueueWorkIdempotent(work WorkUnit) (EnqueueResult, error) {
	if work.IdemKey == "" {
		return EnqueueResult{}, fmt.Errorf("store: enqueue: idem_key is required")
	}
	var result EnqueueResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		idemB := tx.Bucket(bucketIdemKeys)
		key := idemKey(work.Tenant, work.Topic, work.IdemKey)

		if raw := idemB.Get([]byte(key)); raw != nil {
			var rec IdempotencyRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("corrupt idempotency record %q: %w", key, err)
			}
			if rec.ReceiptCID != "" {
				result = EnqueueResult{Disposition: DuplicateReceipt, WorkID: rec.WorkID, ReceiptCID: rec.ReceiptCID}
				return nil
			}
			result = EnqueueResult{Disposition: DuplicateInFlight, WorkID: rec.WorkID}
			return nil
		}

		metaB := tx.Bucket(bucketMeta)
		seq := metaGet(metaB.Get([]byte(metaNextJobSeq))) + 1
		if err := metaB.Put([]byte(metaNextJobSeq), metaPut(seq)); err != nil {
			return err
		}

		job := QueuedJob{
			Seq:        seq,
			Work:       work,
			Attempt:    0,
			AcceptedAt: time.Now().UTC(),
		}
		jobRaw, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal queued job: %w", err)
		}
		readyB := tx.Bucket(bucketReadyJobs)
		if err := readyB.Put(seqKey(seq), jobRaw); err != nil {
			return err
		}

		rec := IdempotencyRecord{
			Tenant:    work.Tenant,
			Topic:     work.Topic,
			IdemKey:   work.IdemKey,
			WorkID:    work.ID,
			Status:    "queued",
			UpdatedAt: time.Now().UTC(),
		}
		recRaw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal idempotency record: %w", err)
		}
		if err := idemB.Put([]byte(key), recRaw); err != nil {
			return err
		}

		result = EnqueueResult{Disposition: Enqueued, Seq: seq, WorkID: work.ID}
		return nil
	})
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("store: enqueue: %w", err)
	}
	return result, nil
}

// LeaseNext implements §4.3's lease_next: pops the smallest seq from
// ready_jobs and moves it to leased_jobs, atomically.
func (s *Store) LeaseNext(leaseTTL time.Duration) (*QueuedJob, error) {
	var leased *QueuedJob
	err := s.db.Update(func(tx *bolt.Tx) error {
		readyB := tx.Bucket(bucketReadyJobs)
		c := readyB.Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		var job QueuedJob
		if err := json.Unmarshal(v, &job); err != nil {
			return fmt.Errorf("corrupt ready job at seq %d: %w", seqFromKey(k), err)
		}
		if err := readyB.Delete(k); err != nil {
			return err
		}

		now := time.Now().UTC()
		expires := now.Add(leaseTTL)
		job.Attempt++
		job.LeasedAt = &now
		job.LeaseExpiresAt = &expires

		raw, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal leased job: %w", err)
		}
		if err := tx.Bucket(bucketLeasedJobs).Put(seqKey(job.Seq), raw); err != nil {
			return err
		}
		leased = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: lease_next: %w", err)
	}
	return leased, nil
}

// ReassignExpiredLeases implements §4.3's reassign_expired_leases.
func (s *Store) ReassignExpiredLeases() (uint64, error) {
	var reassigned uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		leasedB := tx.Bucket(bucketLeasedJobs)
		readyB := tx.Bucket(bucketReadyJobs)
		now := time.Now().UTC()

		var expiredKeys [][]byte
		var expiredJobs []QueuedJob
		c := leasedB.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var job QueuedJob
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("corrupt leased job at seq %d: %w", seqFromKey(k), err)
			}
			if job.LeaseExpiresAt != nil && !job.LeaseExpiresAt.After(now) {
				expiredKeys = append(expiredKeys, append([]byte(nil), k...))
				expiredJobs = append(expiredJobs, job)
			}
		}

		for i, job := range expiredJobs {
			job.LeasedAt = nil
			job.LeaseExpiresAt = nil
			raw, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("marshal reassigned job: %w", err)
			}
			if err := leasedB.Delete(expiredKeys[i]); err != nil {
				return err
			}
			if err := readyB.Put(seqKey(job.Seq), raw); err != nil {
				return err
			}
			reassigned++
		}

		if reassigned > 0 {
			metaB := tx.Bucket(bucketMeta)
			total := metaGet(metaB.Get([]byte(metaReassignsTotal))) + reassigned
			if err := metaB.Put([]byte(metaReassignsTotal), metaPut(total)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: reassign_expired_leases: %w", err)
	}
	return reassigned, nil
}

// CompleteLeased implements §4.3's complete_leased: removes the entry
// from leased_jobs only.
func (s *Store) CompleteLeased(seq uint64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLeasedJobs).Delete(seqKey(seq))
	})
	if err != nil {
		return fmt.Errorf("store: complete_leased(%d): %w", seq, err)
	}
	return nil
}

// PutReceipt implements §4.3's put_receipt: writes the receipt and
// upserts its idempotency record with the final status and CID.
func (s *Store) PutReceipt(r receipts.Receipt) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal receipt: %w", err)
		}
		if err := tx.Bucket(bucketReceipts).Put([]byte(r.CID), raw); err != nil {
			return err
		}

		idemB := tx.Bucket(bucketIdemKeys)
		key := idemKey(r.Tenant, r.Topic, r.IdemKey)
		rec := IdempotencyRecord{
			Tenant:     r.Tenant,
			Topic:      r.Topic,
			IdemKey:    r.IdemKey,
			WorkID:     r.WorkID,
			Status:     r.Status,
			ReceiptCID: r.CID,
			UpdatedAt:  time.Now().UTC(),
		}
		if existing := idemB.Get([]byte(key)); existing != nil {
			var old IdempotencyRecord
			if err := json.Unmarshal(existing, &old); err == nil {
				rec.WorkID = old.WorkID
			}
		}
		recRaw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal idempotency record: %w", err)
		}
		return idemB.Put([]byte(key), recRaw)
	})
	if err != nil {
		return fmt.Errorf("store: put_receipt: %w", err)
	}
	return nil
}

// GetReceipt fetches a persisted receipt by CID.
func (s *Store) GetReceipt(cid string) (*receipts.Receipt, error) {
	var r *receipts.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketReceipts).Get([]byte(cid))
		if raw == nil {
			return nil
		}
		var rec receipts.Receipt
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("corrupt receipt %q: %w", cid, err)
		}
		r = &rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: get_receipt: %w", err)
	}
	return r, nil
}

// IncrementStatus increments jobs_total_{status}.
func (s *Store) IncrementStatus(status string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		metaB := tx.Bucket(bucketMeta)
		key := []byte(metaJobsTotal(status))
		v := metaGet(metaB.Get(key)) + 1
		return metaB.Put(key, metaPut(v))
	})
	if err != nil {
		return fmt.Errorf("store: increment_status(%s): %w", status, err)
	}
	return nil
}

// ObserveTimings implements §4.3's observe_timings.
func (s *Store) ObserveTimings(ttftMs, ttrMs int64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		metaB := tx.Bucket(bucketMeta)
		bump := func(key string, delta uint64) error {
			k := []byte(key)
			return metaB.Put(k, metaPut(metaGet(metaB.Get(k))+delta))
		}
		if err := bump(metaTTFTSumMs, uint64(ttftMs)); err != nil {
			return err
		}
		if err := bump(metaTTFTCount, 1); err != nil {
			return err
		}
		if err := bump(metaTTRSumMs, uint64(ttrMs)); err != nil {
			return err
		}
		if err := bump(metaTTRCount, 1); err != nil {
			return err
		}
		for _, le := range ttftBuckets {
			if ttftMs <= le {
				if err := bump(metaHistTTFT(le), 1); err != nil {
					return err
				}
			}
		}
		for _, le := range ttrBuckets {
			if ttrMs <= le {
				if err := bump(metaHistTTR(le), 1); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: observe_timings: %w", err)
	}
	return nil
}

// QueueMetrics implements §4.3's queue_metrics: a read-only snapshot.
func (s *Store) QueueMetrics() (Snapshot, error) {
	var snap Snapshot
	snap.JobsTotal = map[string]uint64{}
	snap.HistTTFT = map[int64]uint64{}
	snap.HistTTR = map[int64]uint64{}

	err := s.db.View(func(tx *bolt.Tx) error {
		snap.ReadyCount = uint64(tx.Bucket(bucketReadyJobs).Stats().KeyN)
		snap.LeasedCount = uint64(tx.Bucket(bucketLeasedJobs).Stats().KeyN)
		snap.ReceiptsCount = uint64(tx.Bucket(bucketReceipts).Stats().KeyN)

		metaB := tx.Bucket(bucketMeta)
		snap.NextJobSeq = metaGet(metaB.Get([]byte(metaNextJobSeq)))
		snap.ReassignsTotal = metaGet(metaB.Get([]byte(metaReassignsTotal)))
		snap.TTFT = TimingSnapshot{
			SumMs: metaGet(metaB.Get([]byte(metaTTFTSumMs))),
			Count: metaGet(metaB.Get([]byte(metaTTFTCount))),
		}
		snap.TTR = TimingSnapshot{
			SumMs: metaGet(metaB.Get([]byte(metaTTRSumMs))),
			Count: metaGet(metaB.Get([]byte(metaTTRCount))),
		}
		for _, status := range []string{StatusAccepted, StatusAssigned, StatusProgress, StatusDone, StatusFail} {
			snap.JobsTotal[status] = metaGet(metaB.Get([]byte(metaJobsTotal(status))))
		}
		for _, le := range ttftBuckets {
			snap.HistTTFT[le] = metaGet(metaB.Get([]byte(metaHistTTFT(le))))
		}
		for _, le := range ttrBuckets {
			snap.HistTTR[le] = metaGet(metaB.Get([]byte(metaHistTTR(le))))
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: queue_metrics: %w", err)
	}
	return snap, nil
}

// PurgeReceipts removes each listed receipt and its idempotency
// record; a subsequent enqueue of that idem key then yields Enqueued
// again.
func (s *Store) PurgeReceipts(cids []string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		receiptsB := tx.Bucket(bucketReceipts)
		idemB := tx.Bucket(bucketIdemKeys)
		for _, cid := range cids {
			raw := receiptsB.Get([]byte(cid))
			if raw == nil {
				continue
			}
			var r receipts.Receipt
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("corrupt receipt %q: %w", cid, err)
			}
			if err := receiptsB.Delete([]byte(cid)); err != nil {
				return err
			}
			if err := idemB.Delete([]byte(idemKey(r.Tenant, r.Topic, r.IdemKey))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: purge_receipts: %w", err)
	}
	return nil
}
