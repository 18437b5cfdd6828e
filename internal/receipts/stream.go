package receipts

import "context"

// SignRequest pairs an unsigned receipt with the channel its signed
// result should be delivered on, the unit of work for SignStream.
type SignRequest struct {
	Unsigned UnsignedReceipt
	Result   chan<- SignResult
}

// SignResult is the outcome of one SignStream request.
type SignResult struct {
	Receipt Receipt
	Err     error
}

// SignStream runs a continuous signing loop over reqs until ctx is
// canceled or reqs is closed, so callers can sign without each one
// blocking on its own goroutine. Mirrors the pump-style continuous
// signer used when receipts are produced faster than one-shot Sign
// calls can be awaited individually.
func (s *Signer) SignStream(ctx context.Context, reqs <-chan SignRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-reqs:
			if !ok {
				return
			}
			r, err := s.Sign(req.Unsigned)
			select {
			case req.Result <- SignResult{Receipt: r, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}
