package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

// ErrDisconnected is returned by clients whose connection has been cut by
// Faults.
var ErrDisconnected = errors.New("disconnected")

// Faults injects connection errors into clients. A nil *Faults injects
// nothing.
type Faults struct {
	mtx          sync.Mutex
	disconnected bool
	failureRate  float64
	rng          *rand.Rand
}

// NewFaults returns faults that fail the given share of calls. seed makes
// the failures reproducible.
func NewFaults(failureRate float64, seed int64) *Faults {
	return &Faults{failureRate: failureRate, rng: rand.New(rand.NewSource(seed))} //nolint:gosec
}

// Disconnect fails every call until Reconnect is called.
func (f *Faults) Disconnect() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.disconnected = true
}

// Reconnect undoes Disconnect.
func (f *Faults) Reconnect() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.disconnected = false
}

// SetFailureRate sets the share of failed calls.
func (f *Faults) SetFailureRate(rate float64) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.failureRate = rate
}

func (f *Faults) check(op string) error {
	if f == nil {
		return nil
	}
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.disconnected || (f.failureRate > 0 && f.rng.Float64() < f.failureRate) {
		return race.NewConnectionError(fmt.Errorf("%s: %w", op, ErrDisconnected))
	}
	return nil
}

// HeaderBatch imports a peer header together with the proof it is submitted
// with.
type HeaderBatch struct {
	Header Header
}

var _ lane.BatchTransaction = (*HeaderBatch)(nil)

// RequiredHeaderID implements race.BatchTransaction.
func (b *HeaderBatch) RequiredHeaderID() types.HeaderID { return b.Header.ID() }

// ClientOption sets an optional parameter on a client.
type ClientOption func(*client)

// WithRelayer sets the name of the relayer that signs the submitted
// transactions.
func WithRelayer(name string) ClientOption {
	return func(c *client) { c.relayer = name }
}

// WithHeaderBatches makes the client bundle required peer headers with the
// next submitted proof, instead of importing them right away.
func WithHeaderBatches() ClientOption {
	return func(c *client) { c.batches = true }
}

// WithFaults injects faults into the client.
func WithFaults(f *Faults) ClientOption {
	return func(c *client) { c.faults = f }
}

type client struct {
	self, peer *Chain
	relayer    string
	batches    bool
	faults     *Faults
}

func newClient(self, peer *Chain, options ...ClientOption) client {
	c := client{self: self, peer: peer, relayer: "relayer"}
	for _, option := range options {
		option(&c)
	}
	return c
}

// State returns the state of the chain.
func (c *client) State(ctx context.Context) (lane.SourceClientState, error) {
	if err := c.faults.check("state"); err != nil {
		return lane.SourceClientState{}, err
	}
	return c.self.State()
}

func (c *client) stateAt(op string, id types.HeaderID) (LaneState, error) {
	if err := c.faults.check(op); err != nil {
		return LaneState{}, err
	}
	return c.self.StateAt(id)
}

// requireHeader imports the peer header, unless it is already there.
func (c *client) requireHeader(id types.HeaderID) (lane.BatchTransaction, error) {
	if err := c.faults.check("require_header"); err != nil {
		return nil, err
	}
	if peer := c.self.BestState().Peer; peer != nil && peer.Number >= id.Number {
		return nil, nil
	}

	h, err := c.peer.HeaderByID(id)
	if err != nil {
		return nil, err
	}
	if c.batches {
		return &HeaderBatch{Header: h}, nil
	}
	if _, err := c.self.submit(importHeader{header: h}); err != nil {
		return nil, err
	}
	return nil, nil
}

// submit submits the actions, preceded by the import of the batched header
// if there is one.
func (c *client) submit(batch lane.BatchTransaction, a action) (*TxTracker, error) {
	if err := c.faults.check("submit"); err != nil {
		return nil, err
	}
	if batch == nil {
		return c.self.submit(a)
	}
	hb, ok := batch.(*HeaderBatch)
	if !ok {
		return nil, fmt.Errorf("unexpected batch transaction %T", batch)
	}
	return c.self.submit(importHeader{header: hb.Header}, a)
}

// SourceClient is a lane source client of a simulated chain.
type SourceClient struct {
	client
}

var _ lane.SourceClient = (*SourceClient)(nil)

// NewSourceClient returns a client of the source chain of a lane that
// leads to the target chain.
func NewSourceClient(source, target *Chain, options ...ClientOption) *SourceClient {
	return &SourceClient{client: newClient(source, target, options...)}
}

// LatestGeneratedNonce implements lane.SourceClient.
func (c *SourceClient) LatestGeneratedNonce(ctx context.Context, id types.HeaderID) (types.HeaderID, types.Nonce, error) {
	st, err := c.stateAt("latest_generated_nonce", id)
	return id, st.Outbound.LatestGeneratedNonce, err
}

// LatestConfirmedReceivedNonce implements lane.SourceClient.
func (c *SourceClient) LatestConfirmedReceivedNonce(
	ctx context.Context,
	id types.HeaderID,
) (types.HeaderID, types.Nonce, error) {
	st, err := c.stateAt("latest_confirmed_received_nonce", id)
	return id, st.Outbound.LatestReceivedNonce, err
}

// GeneratedMessageDetails implements lane.SourceClient.
func (c *SourceClient) GeneratedMessageDetails(
	ctx context.Context,
	id types.HeaderID,
	nonces types.NonceRange,
) (lane.MessageDetailsList, error) {
	if err := c.faults.check("generated_message_details"); err != nil {
		return nil, err
	}
	return c.self.GeneratedMessages(id, nonces)
}

// ProveMessages implements lane.SourceClient.
func (c *SourceClient) ProveMessages(
	ctx context.Context,
	id types.HeaderID,
	nonces types.NonceRange,
	params lane.MessageProofParameters,
) (types.HeaderID, types.NonceRange, lane.MessagesProof, error) {
	if err := c.faults.check("prove_messages"); err != nil {
		return id, nonces, lane.MessagesProof{}, err
	}
	proved, proof, err := c.self.ProveMessages(id, nonces, params.OutboundStateProofRequired)
	return id, proved, proof, err
}

// SubmitMessagesReceivingProof implements lane.SourceClient.
func (c *SourceClient) SubmitMessagesReceivingProof(
	ctx context.Context,
	batch lane.BatchTransaction,
	generatedAt types.HeaderID,
	proof lane.MessagesReceivingProof,
) (lane.TransactionTracker, error) {
	tracker, err := c.submit(batch, confirmDelivery{relayer: c.relayer, proof: proof})
	if err != nil {
		return nil, err
	}
	return tracker, nil
}

// RequireTargetHeaderOnSource implements lane.SourceClient.
func (c *SourceClient) RequireTargetHeaderOnSource(ctx context.Context, id types.HeaderID) (lane.BatchTransaction, error) {
	return c.requireHeader(id)
}

// TargetClient is a lane target client of a simulated chain.
type TargetClient struct {
	client
}

var _ lane.TargetClient = (*TargetClient)(nil)

// NewTargetClient returns a client of the target chain of a lane that
// starts at the source chain.
func NewTargetClient(target, source *Chain, options ...ClientOption) *TargetClient {
	return &TargetClient{client: newClient(target, source, options...)}
}

// LatestReceivedNonce implements lane.TargetClient.
func (c *TargetClient) LatestReceivedNonce(ctx context.Context, id types.HeaderID) (types.HeaderID, types.Nonce, error) {
	st, err := c.stateAt("latest_received_nonce", id)
	return id, st.Inbound.LatestReceivedNonce, err
}

// LatestConfirmedReceivedNonce implements lane.TargetClient.
func (c *TargetClient) LatestConfirmedReceivedNonce(
	ctx context.Context,
	id types.HeaderID,
) (types.HeaderID, types.Nonce, error) {
	st, err := c.stateAt("latest_confirmed_received_nonce", id)
	return id, st.Inbound.LatestConfirmedNonce, err
}

// UnrewardedRelayersState implements lane.TargetClient.
func (c *TargetClient) UnrewardedRelayersState(
	ctx context.Context,
	id types.HeaderID,
) (types.HeaderID, lane.UnrewardedRelayersState, error) {
	st, err := c.stateAt("unrewarded_relayers_state", id)
	return id, st.Inbound.UnrewardedRelayersState(), err
}

// ProveMessagesReceiving implements lane.TargetClient.
func (c *TargetClient) ProveMessagesReceiving(
	ctx context.Context,
	id types.HeaderID,
) (types.HeaderID, lane.MessagesReceivingProof, error) {
	if err := c.faults.check("prove_messages_receiving"); err != nil {
		return id, lane.MessagesReceivingProof{}, err
	}
	proof, err := c.self.ProveInbound(id)
	return id, proof, err
}

// SubmitMessagesProof implements lane.TargetClient.
func (c *TargetClient) SubmitMessagesProof(
	ctx context.Context,
	batch lane.BatchTransaction,
	generatedAt types.HeaderID,
	nonces types.NonceRange,
	proof lane.MessagesProof,
) (lane.NoncesSubmitArtifacts, error) {
	tracker, err := c.submit(batch, deliverMessages{relayer: c.relayer, nonces: nonces, proof: proof})
	if err != nil {
		return lane.NoncesSubmitArtifacts{}, err
	}
	return lane.NoncesSubmitArtifacts{Nonces: nonces, TxTracker: tracker}, nil
}

// RequireSourceHeaderOnTarget implements lane.TargetClient.
func (c *TargetClient) RequireSourceHeaderOnTarget(ctx context.Context, id types.HeaderID) (lane.BatchTransaction, error) {
	return c.requireHeader(id)
}
