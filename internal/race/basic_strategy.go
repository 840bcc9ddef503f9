package race

import (
	"fmt"

	"github.com/tendermint/lanerelay/types"
)

// QueuedNonces is a range of nonces read from the source at a header.
type QueuedNonces[SH, R any] struct {
	At     SH
	Nonces R
}

// BasicStrategy is a Strategy that delivers nonces in the order they have
// been generated at the source. A nonces range becomes deliverable once the
// header it has been read at is known to the target.
//
// It is used as is by the races that don't carry extra data per nonce, and
// as the base of more specific strategies.
type BasicStrategy[SH, TH Header, P any, R NoncesRange[R], TD any] struct {
	// sourceQueue contains nonces that are not yet finalized at the target,
	// ordered by nonce.
	sourceQueue     []QueuedNonces[SH, R]
	bestTargetNonce *types.Nonce
}

var _ Strategy[types.HeaderID, types.HeaderID, struct{}, types.NonceRange, struct{}, struct{}] = (*BasicStrategy[types.HeaderID, types.HeaderID, struct{}, types.NonceRange, struct{}])(nil)

// NewBasicStrategy returns an empty strategy.
func NewBasicStrategy[SH, TH Header, P any, R NoncesRange[R], TD any]() *BasicStrategy[SH, TH, P, R, TD] {
	return &BasicStrategy[SH, TH, P, R, TD]{}
}

// SourceQueue returns the queued nonces. The slice must not be modified.
func (s *BasicStrategy[SH, TH, P, R, TD]) SourceQueue() []QueuedNonces[SH, R] {
	return s.sourceQueue
}

// IsEmpty implements Strategy.
func (s *BasicStrategy[SH, TH, P, R, TD]) IsEmpty() bool {
	return len(s.sourceQueue) == 0
}

// BestAtSource implements Strategy. It is unknown until the best target
// nonce is known.
func (s *BasicStrategy[SH, TH, P, R, TD]) BestAtSource() (types.Nonce, bool) {
	if s.bestTargetNonce == nil {
		return 0, false
	}
	best := *s.bestTargetNonce
	if n := len(s.sourceQueue); n > 0 {
		if end := s.sourceQueue[n-1].Nonces.End(); end > best {
			best = end
		}
	}
	return best, true
}

// BestAtTarget implements Strategy.
func (s *BasicStrategy[SH, TH, P, R, TD]) BestAtTarget() (types.Nonce, bool) {
	if s.bestTargetNonce == nil {
		return 0, false
	}
	return *s.bestTargetNonce, true
}

// RequiredSourceHeaderAtTarget implements Strategy. A header is only
// required when nothing may be selected at the current state, but the
// newest queued nonces could be selected once the target knows their header.
func (s *BasicStrategy[SH, TH, P, R, TD]) RequiredSourceHeaderAtTarget(state State[SH, TH, P]) (SH, bool) {
	var none SH
	// we have already submitted something, wait until it is mined
	if state.NoncesSubmitted != nil || len(s.sourceQueue) == 0 {
		return none, false
	}
	if _, ok := s.SelectNonces(state, 0); ok {
		return none, false
	}

	newest := s.sourceQueue[len(s.sourceQueue)-1].At
	expected := state
	expected.SetBestFinalizedSourceHeaderIDAtBestTarget(newest)
	if _, ok := s.SelectNonces(expected, 0); !ok {
		return none, false
	}
	return newest, true
}

// SourceNoncesUpdated implements Strategy. Nonces that are already queued
// or already known to the target are skipped.
func (s *BasicStrategy[SH, TH, P, R, TD]) SourceNoncesUpdated(at SH, nonces SourceClientNonces[R]) {
	newNonces := nonces.NewNonces
	if newNonces.IsEmpty() {
		return
	}

	var (
		prevBest types.Nonce
		hasPrev  bool
	)
	if n := len(s.sourceQueue); n > 0 {
		prevBest, hasPrev = s.sourceQueue[n-1].Nonces.End(), true
	}
	if s.bestTargetNonce != nil && (!hasPrev || *s.bestTargetNonce > prevBest) {
		prevBest, hasPrev = *s.bestTargetNonce, true
	}

	if hasPrev {
		var ok bool
		if newNonces, ok = newNonces.GreaterThan(prevBest); !ok {
			return
		}
	}
	s.sourceQueue = append(s.sourceQueue, QueuedNonces[SH, R]{At: at, Nonces: newNonces})
}

// BestTargetNoncesUpdated implements Strategy. The selected or submitted
// nonces are forgotten once the target has received some of them.
func (s *BasicStrategy[SH, TH, P, R, TD]) BestTargetNoncesUpdated(nonces TargetClientNonces[TD], state *State[SH, TH, P]) {
	nonce := nonces.LatestNonce

	// if some of the nonces we have selected to submit are already at the
	// target, select new nonces
	if toSubmit, ok := state.NoncesToSubmitRange(); ok && nonce >= toSubmit.Begin() {
		state.ResetNoncesToSubmit()
	}
	// the same for the submitted nonces
	if submitted, ok := state.NoncesSubmittedRange(); ok && nonce >= submitted.Begin() {
		state.ResetNoncesSubmitted()
	}

	s.bestTargetNonce = &nonce
}

// FinalizedTargetNoncesUpdated implements Strategy. Finalized nonces are
// removed from the queue.
func (s *BasicStrategy[SH, TH, P, R, TD]) FinalizedTargetNoncesUpdated(nonces TargetClientNonces[TD], _ *State[SH, TH, P]) {
	nonce := nonces.LatestNonce
	s.removeLENonces(nonce)

	if s.bestTargetNonce == nil || *s.bestTargetNonce < nonce {
		s.bestTargetNonce = &nonce
	}
}

// ResetBestTargetNonces implements Strategy.
func (s *BasicStrategy[SH, TH, P, R, TD]) ResetBestTargetNonces() {
	s.bestTargetNonce = nil
}

// SelectNoncesToDeliver implements Strategy. It selects every available
// nonce.
func (s *BasicStrategy[SH, TH, P, R, TD]) SelectNoncesToDeliver(state State[SH, TH, P]) (types.NonceRange, struct{}, bool) {
	nonces, ok := s.SelectNonces(state, 0)
	return nonces, struct{}{}, ok
}

// SelectNonces returns the nonces that may be delivered at the given state:
// the nonces after the best target nonce, read at source headers that are
// known to the target. If limit is positive, at most limit nonces are
// selected.
func (s *BasicStrategy[SH, TH, P, R, TD]) SelectNonces(state State[SH, TH, P], limit uint64) (types.NonceRange, bool) {
	available := s.AvailableSourceQueue(state)
	if len(available) == 0 {
		return types.NonceRange{}, false
	}

	nonces := types.NewNonceRange(*s.bestTargetNonce+1, available[len(available)-1].Nonces.End())
	if first := available[0].Nonces.Begin(); first > nonces.First {
		nonces.First = first
	}
	if limit > 0 && nonces.Len() > limit {
		nonces.Last = nonces.First + limit - 1
	}
	return nonces, !nonces.IsEmpty()
}

// AvailableSourceQueue returns the part of the queue that may be delivered
// at the given state. It is empty when a proof is being submitted, when the
// best target nonce is unknown, or when no queued header is known to the
// target yet.
func (s *BasicStrategy[SH, TH, P, R, TD]) AvailableSourceQueue(state State[SH, TH, P]) []QueuedNonces[SH, R] {
	// if we have already selected nonces that we want to submit, do nothing
	if state.NoncesToSubmit != nil {
		return nil
	}
	// if we already submitted some nonces, do nothing
	if state.NoncesSubmitted != nil {
		return nil
	}
	if s.bestTargetNonce == nil || state.BestFinalizedSourceHeaderIDAtBestTarget == nil {
		return nil
	}

	bestTarget := *s.bestTargetNonce
	anchor := (*state.BestFinalizedSourceHeaderIDAtBestTarget).Height()

	begin, end := -1, -1
	for i, queued := range s.sourceQueue {
		if queued.At.Height() > anchor {
			break
		}
		if queued.Nonces.End() <= bestTarget {
			continue
		}
		if begin < 0 {
			begin = i
		}
		end = i
	}
	if begin < 0 {
		return nil
	}
	return s.sourceQueue[begin : end+1]
}

func (s *BasicStrategy[SH, TH, P, R, TD]) removeLENonces(nonce types.Nonce) {
	for len(s.sourceQueue) > 0 {
		front := s.sourceQueue[0]
		if rest, ok := front.Nonces.GreaterThan(nonce); ok {
			s.sourceQueue[0] = QueuedNonces[SH, R]{At: front.At, Nonces: rest}
			return
		}
		s.sourceQueue = s.sourceQueue[1:]
	}
}

func (s *BasicStrategy[SH, TH, P, R, TD]) String() string {
	return fmt.Sprintf("BasicStrategy{queue:%d best_target:%s}",
		len(s.sourceQueue), optString(s.bestTargetNonce))
}
