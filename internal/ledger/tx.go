package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

var (
	ErrInvalidProof        = errors.New("invalid proof")
	ErrWrongLane           = errors.New("wrong lane")
	ErrStaleHeader         = errors.New("stale header")
	ErrNothingToDeliver    = errors.New("nothing to deliver")
	ErrNonceGap            = errors.New("nonce gap")
	ErrTooManyRelayers     = errors.New("too many unrewarded relayers")
	ErrTooManyUnconfirmed  = errors.New("too many unconfirmed messages")
	ErrNothingToConfirm    = errors.New("nothing to confirm")
	ErrInvalidConfirmation = errors.New("invalid confirmation")
)

// TxStatus is the final status of a transaction.
type TxStatus = race.TrackedTransactionStatus[types.HeaderID]

// TxTracker follows a submitted transaction until its header is finalized
// or the transaction is dropped.
type TxTracker struct {
	chain *Chain
	id    string
}

var _ lane.TransactionTracker = (*TxTracker)(nil)

// ID returns the transaction id.
func (t *TxTracker) ID() string { return t.id }

// Wait implements race.TransactionTracker. A transaction that has been
// included but failed is reported as finalized too.
func (t *TxTracker) Wait(ctx context.Context) TxStatus {
	for {
		status, changed, err := t.chain.txStatus(t.id)
		switch {
		case err != nil:
			t.chain.logger.Error("failed to read transaction status", "tx", t.id, "err", err)
			return race.Lost[types.HeaderID]()
		case status != nil:
			return *status
		}

		select {
		case <-ctx.Done():
			return race.Lost[types.HeaderID]()
		case <-changed:
		}
	}
}

// blockContext stages the changes of a header that is being built.
type blockContext struct {
	chain    *Chain
	state    LaneState
	messages map[types.Nonce]lane.Message
	peers    map[uint64]Header
}

func newBlockContext(c *Chain, st LaneState) *blockContext {
	return &blockContext{
		chain:    c,
		state:    st.Copy(),
		messages: make(map[types.Nonce]lane.Message),
		peers:    make(map[uint64]Header),
	}
}

func (bc *blockContext) clone() *blockContext {
	next := newBlockContext(bc.chain, bc.state)
	for k, v := range bc.messages {
		next.messages[k] = v
	}
	for k, v := range bc.peers {
		next.peers[k] = v
	}
	return next
}

func (bc *blockContext) message(n types.Nonce) (lane.Message, error) {
	if msg, ok := bc.messages[n]; ok {
		return msg, nil
	}
	return bc.chain.loadMessage(n)
}

// peerHeader returns the imported peer header with the given id.
func (bc *blockContext) peerHeader(id types.HeaderID) (Header, error) {
	if bc.state.Peer == nil || id.Number > bc.state.Peer.Number {
		return Header{}, fmt.Errorf("%w: peer header %v is not imported", ErrUnknownHeader, id)
	}

	h, ok := bc.peers[id.Number]
	if !ok {
		var err error
		if h, ok, err = bc.chain.loadPeerHeader(id.Number); err != nil {
			return Header{}, err
		}
	}
	if !ok || h.Hash() != id.Hash {
		return Header{}, fmt.Errorf("%w: peer header %v is not imported", ErrUnknownHeader, id)
	}
	return h, nil
}

type action interface {
	apply(bc *blockContext) error
	fmt.Stringer
}

type transaction struct {
	id      string
	actions []action
}

func newTransaction(actions ...action) transaction {
	return transaction{id: uuid.NewString(), actions: actions}
}

// apply applies all actions or fails on the first failed one.
func (tx transaction) apply(bc *blockContext) error {
	for _, a := range tx.actions {
		if err := a.apply(bc); err != nil {
			return fmt.Errorf("%v: %w", a, err)
		}
	}
	return nil
}

//----------------------------------------

type sendMessage struct {
	payload []byte
	weight  uint64
	reward  uint64
}

func (a sendMessage) apply(bc *blockContext) error {
	out := &bc.state.Outbound
	n := out.LatestGeneratedNonce + 1
	bc.messages[n] = lane.Message{
		MessageDetails: lane.MessageDetails{
			Nonce:          n,
			DispatchWeight: a.weight,
			Size:           uint32(len(a.payload)),
			Reward:         a.reward,
		},
		Payload: a.payload,
	}
	out.LatestGeneratedNonce = n
	return nil
}

func (a sendMessage) String() string { return fmt.Sprintf("SendMessage{%d bytes}", len(a.payload)) }

//----------------------------------------

// importHeader imports a finalized header of the peer chain.
type importHeader struct {
	header Header
}

func (a importHeader) apply(bc *blockContext) error {
	if peer := bc.state.Peer; peer != nil && a.header.Height <= peer.Number {
		return fmt.Errorf("%w: best imported header is %v", ErrStaleHeader, *peer)
	}
	id := a.header.ID()
	bc.peers[a.header.Height] = a.header
	bc.state.Peer = &id
	return nil
}

func (a importHeader) String() string { return fmt.Sprintf("ImportHeader{%v}", a.header.ID()) }

//----------------------------------------

// deliverMessages delivers proved messages to the inbound lane.
type deliverMessages struct {
	relayer string
	nonces  types.NonceRange
	proof   lane.MessagesProof
}

func (a deliverMessages) apply(bc *blockContext) error {
	p := a.proof
	params := bc.chain.params
	if p.Lane != params.Lane {
		return fmt.Errorf("%w: %v", ErrWrongLane, p.Lane)
	}
	if p.Nonces != a.nonces {
		return fmt.Errorf("%w: proof of %v submitted as %v", ErrInvalidProof, p.Nonces, a.nonces)
	}
	h, err := bc.peerHeader(p.At)
	if err != nil {
		return err
	}

	if p.OutboundState != nil {
		if p.OutboundStateProof == nil {
			return fmt.Errorf("%w: outbound state is not proved", ErrInvalidProof)
		}
		if err := p.OutboundStateProof.Verify(h.Root, outboundLeaf(params.Lane, *p.OutboundState)); err != nil {
			return fmt.Errorf("%w: outbound state: %v", ErrInvalidProof, err)
		}
		if err := bc.confirmReceived(p.OutboundState.LatestReceivedNonce); err != nil {
			return err
		}
	} else if a.nonces.IsEmpty() {
		return ErrNothingToDeliver
	}

	if a.nonces.IsEmpty() {
		return nil
	}

	if uint64(len(p.Messages)) != a.nonces.Len() || len(p.MessageProofs) != len(p.Messages) {
		return fmt.Errorf("%w: expected %d messages", ErrInvalidProof, a.nonces.Len())
	}
	for i, msg := range p.Messages {
		if msg.Nonce != a.nonces.First+uint64(i) {
			return fmt.Errorf("%w: unexpected message %d", ErrInvalidProof, msg.Nonce)
		}
		if p.MessageProofs[i] == nil {
			return fmt.Errorf("%w: message %d is not proved", ErrInvalidProof, msg.Nonce)
		}
		if err := p.MessageProofs[i].Verify(h.Root, messageLeaf(params.Lane, msg)); err != nil {
			return fmt.Errorf("%w: message %d: %v", ErrInvalidProof, msg.Nonce, err)
		}
	}

	in := &bc.state.Inbound
	if a.nonces.Last <= in.LatestReceivedNonce {
		return fmt.Errorf("%w: %v have already been received", ErrNothingToDeliver, a.nonces)
	}
	if a.nonces.First > in.LatestReceivedNonce+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrNonceGap, in.LatestReceivedNonce+1, a.nonces.First)
	}
	received := types.NewNonceRange(in.LatestReceivedNonce+1, a.nonces.Last)
	if received.Last-in.LatestConfirmedNonce > params.MaxUnconfirmedMessages {
		return ErrTooManyUnconfirmed
	}

	if last := len(in.Relayers) - 1; last >= 0 && in.Relayers[last].Relayer == a.relayer {
		in.Relayers[last].Messages.Last = received.Last
	} else {
		if uint64(len(in.Relayers)) >= params.MaxUnrewardedRelayerEntries {
			return ErrTooManyRelayers
		}
		in.Relayers = append(in.Relayers, lane.UnrewardedRelayer{Relayer: a.relayer, Messages: received})
	}
	in.LatestReceivedNonce = received.Last
	return nil
}

func (a deliverMessages) String() string {
	return fmt.Sprintf("DeliverMessages{%v by %s}", a.nonces, a.relayer)
}

// confirmReceived learns that the source has confirmed the delivery of
// messages up to nonce, and prunes the relayers that get rewarded for them.
func (bc *blockContext) confirmReceived(nonce types.Nonce) error {
	in := &bc.state.Inbound
	if nonce <= in.LatestConfirmedNonce {
		return nil
	}
	if nonce > in.LatestReceivedNonce {
		return fmt.Errorf("%w: %d is confirmed, but only %d is received",
			ErrInvalidConfirmation, nonce, in.LatestReceivedNonce)
	}

	in.LatestConfirmedNonce = nonce
	relayers := in.Relayers[:0]
	for _, r := range in.Relayers {
		if r.Messages.Last <= nonce {
			continue
		}
		if r.Messages.First <= nonce {
			r.Messages.First = nonce + 1
		}
		relayers = append(relayers, r)
	}
	in.Relayers = relayers
	return nil
}

//----------------------------------------

// confirmDelivery proves the inbound lane state of the peer to the source of
// the lane. Relayers are rewarded for the newly confirmed messages.
type confirmDelivery struct {
	relayer string
	proof   lane.MessagesReceivingProof
}

func (a confirmDelivery) apply(bc *blockContext) error {
	p := a.proof
	params := bc.chain.params
	if p.Lane != params.Lane {
		return fmt.Errorf("%w: %v", ErrWrongLane, p.Lane)
	}
	h, err := bc.peerHeader(p.At)
	if err != nil {
		return err
	}
	if p.Proof == nil {
		return fmt.Errorf("%w: inbound state is not proved", ErrInvalidProof)
	}
	if err := p.Proof.Verify(h.Root, inboundLeaf(params.Lane, p.State)); err != nil {
		return fmt.Errorf("%w: inbound state: %v", ErrInvalidProof, err)
	}

	out := &bc.state.Outbound
	received := p.State.LatestReceivedNonce
	if received > out.LatestGeneratedNonce {
		return fmt.Errorf("%w: %d is received, but only %d is sent",
			ErrInvalidConfirmation, received, out.LatestGeneratedNonce)
	}
	if received <= out.LatestReceivedNonce {
		return fmt.Errorf("%w: %d is already confirmed", ErrNothingToConfirm, received)
	}

	confirmed := types.NewNonceRange(out.LatestReceivedNonce+1, received)
	for _, r := range p.State.Relayers {
		rewarded := r.Messages
		if rewarded.First < confirmed.First {
			rewarded.First = confirmed.First
		}
		if rewarded.Last > confirmed.Last {
			rewarded.Last = confirmed.Last
		}
		for n := rewarded.First; !rewarded.IsEmpty() && n <= rewarded.Last; n++ {
			msg, err := bc.message(n)
			if err != nil {
				return err
			}
			if bc.state.Rewards == nil {
				bc.state.Rewards = make(map[string]uint64)
			}
			bc.state.Rewards[r.Relayer] += msg.Reward
		}
	}
	out.LatestReceivedNonce = received
	return nil
}

func (a confirmDelivery) String() string {
	return fmt.Sprintf("ConfirmDelivery{%d by %s}", a.proof.State.LatestReceivedNonce, a.relayer)
}
