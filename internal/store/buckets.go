package store

import (
	"encoding/binary"
	"strconv"
)

var (
	bucketReadyJobs  = []byte("ready_jobs")
	bucketLeasedJobs = []byte("leased_jobs")
	bucketReceipts   = []byte("receipts")
	bucketIdemKeys   = []byte("idem_keys")
	bucketMeta       = []byte("meta")
)

var allBuckets = [][]byte{bucketReadyJobs, bucketLeasedJobs, bucketReceipts, bucketIdemKeys, bucketMeta}

const idemSeparator = "\x1f"

func idemKey(tenant, topic, idemKey string) string {
	return tenant + idemSeparator + topic + idemSeparator + idemKey
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func seqFromKey(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func metaGet(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func metaPut(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// metric key names, per the spec's §6 metrics counters list.
const (
	metaNextJobSeq     = "next_job_seq"
	metaReassignsTotal = "reassigns_total"
	metaTTFTSumMs      = "ttft_sum_ms"
	metaTTFTCount      = "ttft_count"
	metaTTRSumMs       = "ttr_sum_ms"
	metaTTRCount       = "ttr_count"
)

func metaJobsTotal(status string) string {
	return "jobs_total_" + status
}

func metaHistTTFT(bucket int64) string {
	return "hist_ttft_le_" + strconv.FormatInt(bucket, 10)
}

func metaHistTTR(bucket int64) string {
	return "hist_ttr_le_" + strconv.FormatInt(bucket, 10)
}
