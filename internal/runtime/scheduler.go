// Package runtime implements the cooperative scheduler loop that
// drains the queue, drives handlers, and emits signed receipts.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danvoulez/aurea/internal/events"
	"github.com/danvoulez/aurea/internal/handler"
	"github.com/danvoulez/aurea/internal/logger"
	"github.com/danvoulez/aurea/internal/nrf"
	"github.com/danvoulez/aurea/internal/policy"
	"github.com/danvoulez/aurea/internal/receipts"
	"github.com/danvoulez/aurea/internal/store"
)

// DefaultTickInterval and DefaultLeaseTTL are the spec's §4.4 defaults.
const (
	DefaultTickInterval = 150 * time.Millisecond
	DefaultLeaseTTL     = 15 * time.Second
)

// Scheduler drains the ready queue, drives handlers, and commits
// signed receipts. It borrows a QueuedJob from the store for the
// duration of one execution attempt; the store remains the sole owner
// of record.
type Scheduler struct {
	store        *store.Store
	registry     *handler.Registry
	signer       *receipts.Signer
	bus          *events.Bus
	policy       policy.Evaluator
	log          zerolog.Logger
	tickInterval time.Duration
	leaseTTL     time.Duration

	// signReqs feeds the signer's streaming pump (see Run and drive):
	// every terminal receipt is signed by one continuous consumer
	// goroutine rather than by whichever goroutine happens to call
	// drive, so signing serializes through a single point regardless
	// of how many workers ever end up calling drive concurrently.
	signReqs chan receipts.SignRequest
}

// signStreamCapacity bounds how many receipts may be queued for
// signing before drive blocks handing off the next one.
const signStreamCapacity = 64

// New constructs a Scheduler. policyEval may be nil, in which case
// policy.AllowAllPolicy is used.
func New(st *store.Store, reg *handler.Registry, signer *receipts.Signer, bus *events.Bus, policyEval policy.Evaluator, log zerolog.Logger, tickInterval, leaseTTL time.Duration) *Scheduler {
	if policyEval == nil {
		policyEval = policy.AllowAllPolicy{}
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &Scheduler{
		store:        st,
		registry:     reg,
		signer:       signer,
		bus:          bus,
		policy:       policyEval,
		log:          logger.Component(log, "scheduler"),
		tickInterval: tickInterval,
		leaseTTL:     leaseTTL,
		signReqs:     make(chan receipts.SignRequest, signStreamCapacity),
	}
}

// Submit accepts a new WorkUnit: resolves the effective idempotency
// key, enqueues it idempotently, and emits an Accepted event on first
// enqueue.
func (s *Scheduler) Submit(tenant, topic, idemKey string, payload interface{}) (store.EnqueueResult, error) {
	effectiveIdem := idemKey
	if effectiveIdem == "" {
		cid, err := nrf.CID(payload)
		if err != nil {
			return store.EnqueueResult{}, fmt.Errorf("runtime: submit: %w", err)
		}
		effectiveIdem = cid
	}

	work := store.WorkUnit{
		ID:          uuid.NewString(),
		Tenant:      tenant,
		Topic:       topic,
		IdemKey:     effectiveIdem,
		Payload:     payload,
		SubmittedAt: time.Now().UTC(),
	}

	result, err := s.store.EnqueueWorkIdempotent(work)
	if err != nil {
		return store.EnqueueResult{}, err
	}
	if result.Disposition == store.Enqueued {
		if err := s.store.IncrementStatus(store.StatusAccepted); err != nil {
			s.log.Error().Err(err).Msg("increment accepted counter")
		}
		s.bus.Publish(events.Event{
			At:     time.Now().UTC(),
			Tenant: tenant,
			Topic:  topic,
			WorkID: work.ID,
			Status: events.StatusAccepted,
		})
	}
	return result, nil
}

// Run executes the scheduler's cooperative loop until ctx is
// canceled: reassign expired leases, lease the head of ready, drive
// it, sleep.
func (s *Scheduler) Run(ctx context.Context) error {
	go s.signer.SignStream(ctx, s.signReqs)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if n, err := s.store.ReassignExpiredLeases(); err != nil {
			s.log.Error().Err(err).Msg("reassign expired leases")
		} else if n > 0 {
			s.log.Info().Uint64("count", n).Msg("reassigned expired leases")
		}

		job, err := s.store.LeaseNext(s.leaseTTL)
		if err != nil {
			s.log.Error().Err(err).Msg("lease_next")
		} else if job != nil {
			if err := s.drive(ctx, *job); err != nil {
				s.log.Error().Err(err).Uint64("seq", job.Seq).Msg("drive job")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drive executes §4.4's per-job state machine: Assigned → Progress →
// {Done | Fail}, ending in a signed, persisted receipt.
func (s *Scheduler) drive(ctx context.Context, job store.QueuedJob) error {
	work := job.Work
	assignedAt := time.Now().UTC()
	if job.LeasedAt != nil {
		assignedAt = *job.LeasedAt
	}

	s.bumpAndEmit(work, store.StatusAssigned, "", "")
	s.bumpAndEmit(work, store.StatusProgress, "", "")

	name := handler.NameForTopic(work.Topic)
	var status, detail string
	var execErr error
	h, lookupErr := s.registry.Get(name)
	if lookupErr != nil {
		status = store.StatusFail
		detail = fmt.Sprintf("plugin not found: %s", name)
	} else {
		_, execErr = h.Execute(ctx, work.Payload)
		if execErr != nil {
			status = store.StatusFail
			detail = execErr.Error()
		} else {
			status = store.StatusDone
		}
	}

	now := time.Now().UTC()
	ttftMs := nonNegativeMs(assignedAt.Sub(job.AcceptedAt))
	ttrMs := nonNegativeMs(now.Sub(job.AcceptedAt))

	trace := []receipts.PolicyTraceEntry{
		{Rule: "baseline_accept", OK: true, Detail: "work accepted into runtime"},
	}
	if decision, err := s.policy.Evaluate(ctx, policy.WorkDescriptor{
		Tenant: work.Tenant, Topic: work.Topic, IdemKey: work.IdemKey, Payload: work.Payload,
	}); err == nil {
		for _, te := range decision.Trace {
			trace = append(trace, receipts.PolicyTraceEntry{Rule: te.Rule, OK: te.OK, Detail: te.Detail})
		}
	}
	if status == store.StatusFail {
		trace = append(trace, receipts.PolicyTraceEntry{Rule: "runtime_execute", OK: false, Detail: detail})
	}

	planHash, err := nrf.CID(work.Payload)
	if err != nil {
		return fmt.Errorf("runtime: plan_hash: %w", err)
	}

	unsigned := receipts.NewUnsignedReceipt(
		work.ID, work.Tenant, work.Topic, status, work.IdemKey, planHash,
		trace, map[string]int64{"ttft_ms": ttftMs, "ttr_ms": ttrMs}, now,
	)

	receipt, err := s.signViaStream(ctx, unsigned)
	if err != nil {
		return fmt.Errorf("runtime: sign receipt: %w", err)
	}

	if err := s.store.PutReceipt(receipt); err != nil {
		return fmt.Errorf("runtime: put_receipt: %w", err)
	}
	if err := s.store.CompleteLeased(job.Seq); err != nil {
		return fmt.Errorf("runtime: complete_leased: %w", err)
	}
	if err := s.store.ObserveTimings(ttftMs, ttrMs); err != nil {
		s.log.Error().Err(err).Msg("observe_timings")
	}
	if err := s.store.IncrementStatus(status); err != nil {
		s.log.Error().Err(err).Msg("increment_status")
	}

	s.bus.Publish(events.Event{
		At:         now,
		Tenant:     work.Tenant,
		Topic:      work.Topic,
		WorkID:     work.ID,
		Status:     status,
		ReceiptCID: receipt.CID,
		Detail:     detail,
	})
	return nil
}

// signViaStream hands unsigned off to the signer's streaming pump
// (started by Run) and waits for its signed result, instead of
// calling Signer.Sign directly.
func (s *Scheduler) signViaStream(ctx context.Context, unsigned receipts.UnsignedReceipt) (receipts.Receipt, error) {
	result := make(chan receipts.SignResult, 1)
	req := receipts.SignRequest{Unsigned: unsigned, Result: result}

	select {
	case s.signReqs <- req:
	case <-ctx.Done():
		return receipts.Receipt{}, ctx.Err()
	}

	select {
	case res := <-result:
		return res.Receipt, res.Err
	case <-ctx.Done():
		return receipts.Receipt{}, ctx.Err()
	}
}

func (s *Scheduler) bumpAndEmit(work store.WorkUnit, status, receiptCID, detail string) {
	if err := s.store.IncrementStatus(status); err != nil {
		s.log.Error().Err(err).Str("status", status).Msg("increment_status")
	}
	s.bus.Publish(events.Event{
		At:         time.Now().UTC(),
		Tenant:     work.Tenant,
		Topic:      work.Topic,
		WorkID:     work.ID,
		Status:     status,
		ReceiptCID: receiptCID,
		Detail:     detail,
	})
}

func nonNegativeMs(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
