package lane

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/tendermint/lanerelay/crypto/merkle"
	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

// IDSize is the size of a lane id in bytes.
const IDSize = 4

// ID identifies a message lane between two ledgers.
type ID [IDSize]byte

// ParseID decodes a hex encoded lane id.
func ParseID(s string) (ID, error) {
	var id ID
	bz, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid lane id %q: %w", s, err)
	}
	if len(bz) != IDSize {
		return id, fmt.Errorf("invalid lane id %q: expected %d bytes, got %d", s, IDSize, len(bz))
	}
	copy(id[:], bz)
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

type (
	// HeaderID is the header id of both lane ledgers.
	HeaderID = types.HeaderID
	// SourceClientState is the state of the lane source.
	SourceClientState = types.ClientState[HeaderID, HeaderID]
	// TargetClientState is the state of the lane target.
	TargetClientState = types.ClientState[HeaderID, HeaderID]
	// BatchTransaction is a transaction that imports a peer header and is
	// completed with a proof before it is sent.
	BatchTransaction = race.BatchTransaction[HeaderID]
	// TransactionTracker follows a submitted lane transaction.
	TransactionTracker = race.TransactionTracker[HeaderID]
	// NoncesSubmitArtifacts are the results of a submitted messages proof.
	NoncesSubmitArtifacts = race.NoncesSubmitArtifacts[HeaderID]
)

// MessageDetails describes a message generated at the source, without its
// payload.
type MessageDetails struct {
	Nonce types.Nonce `json:"nonce"`
	// DispatchWeight is the weight of the message dispatch at the target.
	DispatchWeight uint64 `json:"dispatch_weight"`
	// Size is the size of the message payload.
	Size uint32 `json:"size"`
	// Reward is paid to the relayer who delivers the message.
	Reward uint64 `json:"reward"`
}

// MessageDetailsList is a list of message details ordered by nonce. Some
// nonces may be missing from it, if the messages have been pruned at the
// source.
type MessageDetailsList []MessageDetails

var _ race.NoncesRange[MessageDetailsList] = MessageDetailsList(nil)

// NewMessageDetailsList sorts details by nonce.
func NewMessageDetailsList(details ...MessageDetails) MessageDetailsList {
	list := MessageDetailsList(details)
	sort.Slice(list, func(i, j int) bool { return list[i].Nonce < list[j].Nonce })
	return list
}

// Begin returns the first nonce of the list, or zero if it is empty.
func (l MessageDetailsList) Begin() types.Nonce {
	if len(l) == 0 {
		return 0
	}
	return l[0].Nonce
}

// End returns the last nonce of the list, or zero if it is empty.
func (l MessageDetailsList) End() types.Nonce {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].Nonce
}

// IsEmpty reports whether the list has no messages.
func (l MessageDetailsList) IsEmpty() bool { return len(l) == 0 }

// GreaterThan returns the details of messages with nonces greater than n.
func (l MessageDetailsList) GreaterThan(n types.Nonce) (MessageDetailsList, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].Nonce > n })
	if i == len(l) {
		return nil, false
	}
	return l[i:], true
}

func (l MessageDetailsList) String() string {
	if len(l) == 0 {
		return "[]"
	}
	return fmt.Sprintf("[%d..=%d](%d)", l.Begin(), l.End(), len(l))
}

// MessageProofParameters tell the source what to include in a messages
// proof.
type MessageProofParameters struct {
	// OutboundStateProofRequired is set when the proof must also carry the
	// outbound lane state, so the target learns about delivery
	// confirmations and pays relayers.
	OutboundStateProofRequired bool
	// DispatchWeight is the total dispatch weight of the proved messages.
	DispatchWeight uint64
}

// UnrewardedRelayersState summarizes the relayers that have delivered
// messages to the target and wait for the confirmation to get their reward.
type UnrewardedRelayersState struct {
	UnrewardedRelayerEntries uint64 `json:"unrewarded_relayer_entries"`
	MessagesInOldestEntry    uint64 `json:"messages_in_oldest_entry"`
	TotalMessages            uint64 `json:"total_messages"`
}

// DeliveryRaceTargetNoncesData is the target data the delivery strategy
// needs besides the latest received nonce.
type DeliveryRaceTargetNoncesData struct {
	// ConfirmedNonce is the latest nonce that has been delivered to the
	// target, confirmed back to the source, and the relayer of which has
	// been rewarded.
	ConfirmedNonce types.Nonce
	// UnrewardedRelayers is the state of the unrewarded relayers set at the
	// target.
	UnrewardedRelayers UnrewardedRelayersState
}

func (d DeliveryRaceTargetNoncesData) String() string {
	return fmt.Sprintf("{confirmed:%d relayers:%d messages:%d}",
		d.ConfirmedNonce,
		d.UnrewardedRelayers.UnrewardedRelayerEntries,
		d.UnrewardedRelayers.TotalMessages)
}

// Message is a message of an outbound lane.
type Message struct {
	MessageDetails
	Payload []byte `json:"payload"`
}

// OutboundLaneState is the state of a lane at its source.
type OutboundLaneState struct {
	LatestGeneratedNonce types.Nonce `json:"latest_generated_nonce"`
	// LatestReceivedNonce is the latest nonce the target has confirmed to
	// have received.
	LatestReceivedNonce types.Nonce `json:"latest_received_nonce"`
}

// UnrewardedRelayer is a relayer that has delivered a range of messages and
// has not been rewarded yet.
type UnrewardedRelayer struct {
	Relayer  string           `json:"relayer"`
	Messages types.NonceRange `json:"messages"`
}

// InboundLaneState is the state of a lane at its target.
type InboundLaneState struct {
	LatestReceivedNonce types.Nonce `json:"latest_received_nonce"`
	// LatestConfirmedNonce is the latest nonce the target knows to be
	// confirmed at the source.
	LatestConfirmedNonce types.Nonce         `json:"latest_confirmed_nonce"`
	Relayers             []UnrewardedRelayer `json:"relayers"`
}

// UnrewardedRelayersState summarizes the unrewarded relayers of the lane.
func (s InboundLaneState) UnrewardedRelayersState() UnrewardedRelayersState {
	st := UnrewardedRelayersState{UnrewardedRelayerEntries: uint64(len(s.Relayers))}
	for i, r := range s.Relayers {
		if i == 0 {
			st.MessagesInOldestEntry = r.Messages.Len()
		}
		st.TotalMessages += r.Messages.Len()
	}
	return st
}

// MessagesProof proves a range of messages of an outbound lane at a source
// header.
type MessagesProof struct {
	Lane ID `json:"lane"`
	// At is the source header the proof is generated at.
	At       HeaderID         `json:"at"`
	Nonces   types.NonceRange `json:"nonces"`
	Messages []Message        `json:"messages"`
	// MessageProofs[i] proves Messages[i].
	MessageProofs []*merkle.Proof `json:"message_proofs"`
	// OutboundState is only set when the outbound state proof is required.
	OutboundState      *OutboundLaneState `json:"outbound_state,omitempty"`
	OutboundStateProof *merkle.Proof      `json:"outbound_state_proof,omitempty"`
}

func (p MessagesProof) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "MessagesProof{lane:%v at:%v nonces:%v messages:%d", p.Lane, p.At, p.Nonces, len(p.Messages))
	if p.OutboundState != nil {
		fmt.Fprintf(&sb, " confirmed:%d", p.OutboundState.LatestReceivedNonce)
	}
	sb.WriteString("}")
	return sb.String()
}

// MessagesReceivingProof proves the inbound lane state at a target header.
type MessagesReceivingProof struct {
	Lane ID `json:"lane"`
	// At is the target header the proof is generated at.
	At    HeaderID         `json:"at"`
	State InboundLaneState `json:"state"`
	Proof *merkle.Proof    `json:"proof"`
}

func (p MessagesReceivingProof) String() string {
	return fmt.Sprintf("MessagesReceivingProof{lane:%v at:%v received:%d}",
		p.Lane, p.At, p.State.LatestReceivedNonce)
}
