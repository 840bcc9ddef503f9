package lane

import (
	"fmt"

	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

type (
	deliveryState        = race.State[HeaderID, HeaderID, MessagesProof]
	deliverySourceNonces = race.SourceClientNonces[MessageDetailsList]
	deliveryTargetNonces = race.TargetClientNonces[DeliveryRaceTargetNoncesData]
	deliveryBase         = race.BasicStrategy[HeaderID, HeaderID, MessagesProof, MessageDetailsList, DeliveryRaceTargetNoncesData]
)

// confirmedNonce is the latest confirmed nonce at the source together with
// the first source header it has been seen at.
type confirmedNonce struct {
	at    HeaderID
	nonce types.Nonce
}

// DeliveryStrategy selects the messages to deliver to the target. On top
// of the in-order delivery of BasicStrategy, it keeps the batches within
// the configured limits and respects the limits of the target inbound lane:
// the target rejects new messages while too many relayers are waiting for
// their rewards, or too many delivered messages are not confirmed.
type DeliveryStrategy struct {
	params DeliveryParams

	// latestConfirmedNoncesAtSource is ordered by header number.
	latestConfirmedNoncesAtSource []confirmedNonce
	// targetNonces are read at the best target header.
	targetNonces *deliveryTargetNonces
	base         *deliveryBase
}

var _ race.Strategy[HeaderID, HeaderID, MessagesProof, MessageDetailsList, MessageProofParameters, DeliveryRaceTargetNoncesData] = (*DeliveryStrategy)(nil)

// NewDeliveryStrategy returns an empty delivery strategy.
func NewDeliveryStrategy(params DeliveryParams) *DeliveryStrategy {
	return &DeliveryStrategy{
		params: params,
		base:   race.NewBasicStrategy[HeaderID, HeaderID, MessagesProof, MessageDetailsList, DeliveryRaceTargetNoncesData](),
	}
}

// IsEmpty implements race.Strategy.
func (s *DeliveryStrategy) IsEmpty() bool { return s.base.IsEmpty() }

// BestAtSource implements race.Strategy.
func (s *DeliveryStrategy) BestAtSource() (types.Nonce, bool) { return s.base.BestAtSource() }

// BestAtTarget implements race.Strategy.
func (s *DeliveryStrategy) BestAtTarget() (types.Nonce, bool) { return s.base.BestAtTarget() }

// RequiredSourceHeaderAtTarget implements race.Strategy. A source header is
// required if it makes some messages deliverable, or if it proves enough
// confirmations to unblock the lane.
func (s *DeliveryStrategy) RequiredSourceHeaderAtTarget(state deliveryState) (HeaderID, bool) {
	// we have already submitted something, wait until it is mined
	if state.NoncesSubmitted != nil {
		return HeaderID{}, false
	}

	// if we can deliver something using current race state, go on
	if _, _, ok := s.selectRaceAction(state); ok {
		return HeaderID{}, false
	}

	// check if we may deliver some messages once the newest source header
	// is at the target
	if queue := s.base.SourceQueue(); len(queue) > 0 {
		if id := queue[len(queue)-1].At; s.canSubmitTransactionWith(state, id) {
			return id, true
		}
	}

	// we can't deliver anything even then, but maybe the lane is blocked and
	// the newest confirmations would unblock it
	if n := len(s.latestConfirmedNoncesAtSource); n > 0 {
		if id := s.latestConfirmedNoncesAtSource[n-1].at; s.canSubmitTransactionWith(state, id) {
			return id, true
		}
	}

	return HeaderID{}, false
}

// SourceNoncesUpdated implements race.Strategy.
func (s *DeliveryStrategy) SourceNoncesUpdated(at HeaderID, nonces deliverySourceNonces) {
	if nonces.ConfirmedNonce != nil {
		confirmed := *nonces.ConfirmedNonce
		n := len(s.latestConfirmedNoncesAtSource)
		if n == 0 || s.latestConfirmedNoncesAtSource[n-1].nonce != confirmed {
			s.latestConfirmedNoncesAtSource = append(s.latestConfirmedNoncesAtSource, confirmedNonce{at: at, nonce: confirmed})
		}
	}
	s.base.SourceNoncesUpdated(at, nonces)
}

// ResetBestTargetNonces implements race.Strategy.
func (s *DeliveryStrategy) ResetBestTargetNonces() {
	s.targetNonces = nil
	s.base.ResetBestTargetNonces()
}

// BestTargetNoncesUpdated implements race.Strategy.
func (s *DeliveryStrategy) BestTargetNoncesUpdated(nonces deliveryTargetNonces, state *deliveryState) {
	s.targetNonces = &nonces
	s.base.BestTargetNoncesUpdated(nonces, state)
}

// FinalizedTargetNoncesUpdated implements race.Strategy. Confirmations read
// at source headers older than the source header known to the target are
// dropped.
func (s *DeliveryStrategy) FinalizedTargetNoncesUpdated(nonces deliveryTargetNonces, state *deliveryState) {
	if atTarget := state.BestFinalizedSourceHeaderIDAtBestTarget; atTarget != nil {
		oldestToKeep := atTarget.Height()
		for len(s.latestConfirmedNoncesAtSource) > 0 && s.latestConfirmedNoncesAtSource[0].at.Height() < oldestToKeep {
			s.latestConfirmedNoncesAtSource = s.latestConfirmedNoncesAtSource[1:]
		}
	}

	if s.targetNonces != nil && s.targetNonces.LatestNonce < nonces.LatestNonce {
		updated := *s.targetNonces
		updated.LatestNonce = nonces.LatestNonce
		s.targetNonces = &updated
	}

	s.base.FinalizedTargetNoncesUpdated(nonces, state)
}

// SelectNoncesToDeliver implements race.Strategy.
func (s *DeliveryStrategy) SelectNoncesToDeliver(state deliveryState) (types.NonceRange, MessageProofParameters, bool) {
	return s.selectRaceAction(state)
}

// canSubmitTransactionWith reports whether something may be delivered once
// the target knows the given source header.
func (s *DeliveryStrategy) canSubmitTransactionWith(state deliveryState, id HeaderID) bool {
	state.SetBestFinalizedSourceHeaderIDAtBestTarget(id)
	_, _, ok := s.selectRaceAction(state)
	return ok
}

func (s *DeliveryStrategy) selectRaceAction(state deliveryState) (types.NonceRange, MessageProofParameters, bool) {
	var none MessageProofParameters

	// if we have already selected nonces that we want to submit, do nothing
	if state.NoncesToSubmit != nil {
		return types.NonceRange{}, none, false
	}
	// if we already submitted some nonces, do nothing
	if state.NoncesSubmitted != nil {
		return types.NonceRange{}, none, false
	}

	bestTargetNonce, ok := s.base.BestAtTarget()
	if !ok {
		return types.NonceRange{}, none, false
	}
	atTarget := state.BestFinalizedSourceHeaderIDAtBestTarget
	if atTarget == nil || s.targetNonces == nil {
		return types.NonceRange{}, none, false
	}

	targetData := s.targetNonces.NoncesData
	latestConfirmedAtSource, ok := s.latestConfirmedNonceAtSource(*atTarget)
	if !ok {
		latestConfirmedAtSource = targetData.ConfirmedNonce
	}

	// The target rejects new messages if there are too many unconfirmed
	// messages at the inbound lane. Including the outbound lane state in
	// the proof tells the target about new confirmations. It is included
	// whenever the target hasn't seen all the confirmations yet.
	latestReceivedAtTarget := s.targetNonces.LatestNonce
	latestConfirmedAtTarget := targetData.ConfirmedNonce
	outboundStateProofRequired := latestConfirmedAtTarget < latestConfirmedAtSource

	// The target also rejects new messages if there are too many entries in
	// the unrewarded relayers set. If we can't prove enough rewards, wait for
	// the receiving race.
	relayers := targetData.UnrewardedRelayers
	unrewardedLimitReached := relayers.UnrewardedRelayerEntries >= s.params.MaxUnrewardedRelayerEntriesAtTarget ||
		relayers.TotalMessages >= s.params.MaxUnconfirmedNoncesAtTarget
	if unrewardedLimitReached {
		var rewardsBeingProved uint64
		if latestConfirmedAtSource > latestConfirmedAtTarget {
			rewardsBeingProved = latestConfirmedAtSource - latestConfirmedAtTarget
		}
		if rewardsBeingProved < relayers.MessagesInOldestEntry {
			return types.NonceRange{}, none, false
		}
	}

	// We may deliver at most
	//
	//   max_unconfirmed_nonces_at_target - (latest_received - latest_confirmed)
	//
	// messages, where latest_confirmed is the one the target will know after
	// the outbound state proof is applied.
	futureConfirmedAtTarget := latestConfirmedAtTarget
	if outboundStateProofRequired {
		futureConfirmedAtTarget = latestConfirmedAtSource
	}
	var maxNonces uint64
	if latestReceivedAtTarget >= futureConfirmedAtTarget {
		if unconfirmed := latestReceivedAtTarget - futureConfirmedAtTarget; unconfirmed <= s.params.MaxUnconfirmedNoncesAtTarget {
			maxNonces = s.params.MaxUnconfirmedNoncesAtTarget - unconfirmed
		}
	}
	if maxNonces > s.params.MaxMessagesInSingleBatch {
		maxNonces = s.params.MaxMessagesInSingleBatch
	}

	selected, ok := s.selectNonces(state, bestTargetNonce, maxNonces)
	if !ok {
		// a transaction with no messages still unblocks the lane, but it is
		// only accepted if the lane is blocked
		if !unrewardedLimitReached || !outboundStateProofRequired {
			return types.NonceRange{}, none, false
		}
		selected = types.NewNonceRange(bestTargetNonce+1, bestTargetNonce)
	}

	return selected, MessageProofParameters{
		OutboundStateProofRequired: outboundStateProofRequired,
		DispatchWeight:             s.dispatchWeight(selected),
	}, true
}

// selectNonces selects the messages after bestTargetNonce that fit into a
// single batch. A single message is always selected even if it alone
// exceeds the weight or size limit.
func (s *DeliveryStrategy) selectNonces(state deliveryState, bestTargetNonce types.Nonce, maxNonces uint64) (types.NonceRange, bool) {
	if maxNonces == 0 {
		return types.NonceRange{}, false
	}

	var (
		count, weight, size uint64
		first, last         types.Nonce
		selected            bool
	)
loop:
	for _, queued := range s.base.AvailableSourceQueue(state) {
		for _, msg := range queued.Nonces {
			if msg.Nonce <= bestTargetNonce {
				continue
			}
			if count+1 > maxNonces {
				break loop
			}
			newWeight, newSize := weight+msg.DispatchWeight, size+uint64(msg.Size)
			overflow := newWeight > s.params.MaxMessagesWeightInSingleBatch ||
				newSize > uint64(s.params.MaxMessagesSizeInSingleBatch)
			if overflow && selected {
				break loop
			}

			if !selected {
				first = msg.Nonce
			}
			count, weight, size = count+1, newWeight, newSize
			last, selected = msg.Nonce, true
			if overflow {
				break loop
			}
		}
	}
	if !selected {
		return types.NonceRange{}, false
	}

	if first > bestTargetNonce+1 {
		// the messages in between have been pruned at the source
		return types.NewNonceRange(first, last), true
	}
	return types.NewNonceRange(bestTargetNonce+1, last), true
}

// latestConfirmedNonceAtSource returns the latest confirmed nonce read at a
// source header not newer than at.
func (s *DeliveryStrategy) latestConfirmedNonceAtSource(at HeaderID) (types.Nonce, bool) {
	var (
		nonce types.Nonce
		found bool
	)
	for _, c := range s.latestConfirmedNoncesAtSource {
		if c.at.Height() > at.Height() {
			break
		}
		nonce, found = c.nonce, true
	}
	return nonce, found
}

// dispatchWeight returns the total weight of the queued messages in nonces.
func (s *DeliveryStrategy) dispatchWeight(nonces types.NonceRange) uint64 {
	var total uint64
	for _, queued := range s.base.SourceQueue() {
		for _, msg := range queued.Nonces {
			if nonces.Contains(msg.Nonce) {
				total += msg.DispatchWeight
			}
		}
	}
	return total
}

func (s *DeliveryStrategy) String() string {
	targetNonces := "<nil>"
	if s.targetNonces != nil {
		targetNonces = fmt.Sprintf("{latest:%d data:%v}", s.targetNonces.LatestNonce, s.targetNonces.NoncesData)
	}
	return fmt.Sprintf("DeliveryStrategy{confirmations:%d target_nonces:%s base:%v}",
		len(s.latestConfirmedNoncesAtSource), targetNonces, s.base)
}
