package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/danvoulez/aurea/internal/receipts"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aurea.db")
	st, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func work(tenant, topic, idemKey string) WorkUnit {
	return WorkUnit{
		ID:          "w-" + idemKey,
		Tenant:      tenant,
		Topic:       topic,
		IdemKey:     idemKey,
		Payload:     map[string]interface{}{"x": int64(1)},
		SubmittedAt: time.Now().UTC(),
	}
}

func TestEnqueue_SeqMonotonic(t *testing.T) {
	st := newTestStore(t)
	r1, err := st.EnqueueWorkIdempotent(work("t1", "echo:a", "k1"))
	require.NoError(t, err)
	r2, err := st.EnqueueWorkIdempotent(work("t1", "echo:a", "k2"))
	require.NoError(t, err)
	require.Equal(t, Enqueued, r1.Disposition)
	require.Equal(t, Enqueued, r2.Disposition)
	require.Greater(t, r2.Seq, r1.Seq)
}

func TestIdempotency_DuplicateInFlightThenDuplicateReceipt(t *testing.T) {
	st := newTestStore(t)
	w := work("t1", "echo:a", "k1")

	first, err := st.EnqueueWorkIdempotent(w)
	require.NoError(t, err)
	require.Equal(t, Enqueued, first.Disposition)

	second, err := st.EnqueueWorkIdempotent(w)
	require.NoError(t, err)
	require.Equal(t, DuplicateInFlight, second.Disposition)
	require.Equal(t, first.WorkID, second.WorkID)

	job, err := st.LeaseNext(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	r := makeReceipt(t, w, "done")
	require.NoError(t, st.PutReceipt(r))
	require.NoError(t, st.CompleteLeased(job.Seq))

	third, err := st.EnqueueWorkIdempotent(w)
	require.NoError(t, err)
	require.Equal(t, DuplicateReceipt, third.Disposition)
	require.Equal(t, r.CID, third.ReceiptCID)
}

func TestQueueInvariants_CompleteRemovesFromBothTables(t *testing.T) {
	st := newTestStore(t)
	w := work("t1", "echo:a", "k1")
	_, err := st.EnqueueWorkIdempotent(w)
	require.NoError(t, err)

	job, err := st.LeaseNext(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, st.PutReceipt(makeReceipt(t, w, "done")))
	require.NoError(t, st.CompleteLeased(job.Seq))

	snap, err := st.QueueMetrics()
	require.NoError(t, err)
	require.Zero(t, snap.ReadyCount)
	require.Zero(t, snap.LeasedCount)
	require.EqualValues(t, 1, snap.ReceiptsCount)
}

func TestReassignment_ExpiredLeasePreservesSeqAndIncrementsAttempt(t *testing.T) {
	st := newTestStore(t)
	w := work("t1", "echo:a", "k1")
	enq, err := st.EnqueueWorkIdempotent(w)
	require.NoError(t, err)

	job, err := st.LeaseNext(time.Millisecond)
	require.NoError(t, err)
	require.EqualValues(t, 1, job.Attempt)
	require.Equal(t, enq.Seq, job.Seq)

	time.Sleep(5 * time.Millisecond)

	n, err := st.ReassignExpiredLeases()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	reLeased, err := st.LeaseNext(time.Minute)
	require.NoError(t, err)
	require.NotNil(t, reLeased)
	require.Equal(t, enq.Seq, reLeased.Seq)
	require.GreaterOrEqual(t, reLeased.Attempt, uint32(2))
}

func TestObserveTimingsAndMetrics(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.ObserveTimings(50, 600))
	snap, err := st.QueueMetrics()
	require.NoError(t, err)
	require.EqualValues(t, 1, snap.TTFT.Count)
	require.EqualValues(t, 50, snap.TTFT.SumMs)
	require.EqualValues(t, 1, snap.HistTTFT[100])
	require.EqualValues(t, 1, snap.HistTTR[1000])
	require.Zero(t, snap.HistTTR[500])
}

func TestPurgeReceipts_AllowsReenqueue(t *testing.T) {
	st := newTestStore(t)
	w := work("t1", "echo:a", "k1")
	_, err := st.EnqueueWorkIdempotent(w)
	require.NoError(t, err)
	job, err := st.LeaseNext(time.Minute)
	require.NoError(t, err)
	r := makeReceipt(t, w, "done")
	require.NoError(t, st.PutReceipt(r))
	require.NoError(t, st.CompleteLeased(job.Seq))

	require.NoError(t, st.PurgeReceipts([]string{r.CID}))

	result, err := st.EnqueueWorkIdempotent(w)
	require.NoError(t, err)
	require.Equal(t, Enqueued, result.Disposition)
}

func makeReceipt(t *testing.T, w WorkUnit, status string) receipts.Receipt {
	t.Helper()
	seed := make([]byte, 32)
	signer, err := receipts.NewSigner("kid-1", seed)
	require.NoError(t, err)
	unsigned := receipts.NewUnsignedReceipt(w.ID, w.Tenant, w.Topic, status, w.IdemKey, "plan-1",
		nil, map[string]int64{"ttft_ms": 1, "ttr_ms": 2}, time.Now())
	r, err := signer.Sign(unsigned)
	require.NoError(t, err)
	return r
}
