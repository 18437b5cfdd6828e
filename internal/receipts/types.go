// Package receipts builds, signs, and verifies content-addressed
// receipts for terminal work outcomes.
package receipts

import "time"

// PolicyTraceEntry is one step recorded by the runtime's own baseline
// policy trace, or appended by an external policy evaluator.
type PolicyTraceEntry struct {
	Rule   string `json:"rule"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// UnsignedReceipt is the in-memory view of a terminal work outcome
// before CID derivation and signing. Field names and JSON tags are
// exactly the names the spec's receipt layout requires, since this
// struct's canonical JSON form is the CID input.
type UnsignedReceipt struct {
	WorkID       string             `json:"work_id"`
	Tenant       string             `json:"tenant"`
	Topic        string             `json:"topic"`
	Status       string             `json:"status"`
	IdemKey      string             `json:"idem_key"`
	PlanHash     string             `json:"plan_hash"`
	PolicyTrace  []PolicyTraceEntry `json:"policy_trace"`
	StageTimeMs  map[string]int64   `json:"stage_time_ms"`
	Artifacts    []interface{}      `json:"artifacts"`
	CreatedAtRaw string             `json:"created_at"`
}

// CreatedAt parses the receipt's created_at timestamp.
func (u *UnsignedReceipt) CreatedAt() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, u.CreatedAtRaw)
}

// NewUnsignedReceipt stamps created_at as RFC3339Nano, the textual
// form used throughout this codebase for receipt timestamps.
func NewUnsignedReceipt(workID, tenant, topic, status, idemKey, planHash string, trace []PolicyTraceEntry, stageTimeMs map[string]int64, createdAt time.Time) UnsignedReceipt {
	return UnsignedReceipt{
		WorkID:       workID,
		Tenant:       tenant,
		Topic:        topic,
		Status:       status,
		IdemKey:      idemKey,
		PlanHash:     planHash,
		PolicyTrace:  trace,
		StageTimeMs:  stageTimeMs,
		Artifacts:    []interface{}{},
		CreatedAtRaw: createdAt.UTC().Format(time.RFC3339Nano),
	}
}

// Signature carries an Ed25519 signature over a receipt's CID.
type Signature struct {
	Alg       string `json:"alg"`
	KID       string `json:"kid"`
	PublicKey string `json:"public_key"` // base64, 32 raw bytes
	Signature string `json:"signature"`  // base64, 64 raw bytes
}

// Receipt is an UnsignedReceipt plus its CID and signature, the
// persisted, immutable form.
type Receipt struct {
	UnsignedReceipt
	CID       string    `json:"cid"`
	Signature Signature `json:"signature"`
}

// Unsigned returns the UnsignedReceipt view used to recompute the CID
// during verification.
func (r *Receipt) Unsigned() UnsignedReceipt {
	return r.UnsignedReceipt
}
