// Package ledger implements simulated ledgers that the lane relay can be run
// against. A Chain produces headers on demand, keeps an outbound and an
// inbound lane, imports the headers of its peer and commits to its lane
// state with a merkle root, so every message and state that crosses the
// lane is proved.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/types"
)

var (
	// ErrUnknownHeader is returned when a header id is not part of the chain.
	ErrUnknownHeader = errors.New("unknown header")
	// ErrUnknownNonces is returned when asked about messages that have not
	// been sent yet.
	ErrUnknownNonces = errors.New("unknown nonces")
)

// genesisTime is the time of every genesis header, so that chains with the
// same params share the genesis hash.
var genesisTime = time.Unix(0, 0).UTC()

// Params configures a simulated chain.
type Params struct {
	// Lane is the id of both lanes of the chain.
	Lane lane.ID
	// FinalityDepth is the number of headers after which a header is
	// finalized.
	FinalityDepth uint64
	// MaxUnrewardedRelayerEntries limits the unrewarded relayers of the
	// inbound lane.
	MaxUnrewardedRelayerEntries uint64
	// MaxUnconfirmedMessages limits the received but unconfirmed messages
	// of the inbound lane.
	MaxUnconfirmedMessages uint64
	// ProofCacheSize is the number of headers whose lane trees are cached.
	ProofCacheSize int
}

// DefaultParams returns the default chain params.
func DefaultParams() Params {
	return Params{
		Lane:                        lane.ID{0, 0, 0, 1},
		FinalityDepth:               2,
		MaxUnrewardedRelayerEntries: 16,
		MaxUnconfirmedMessages:      128,
		ProofCacheSize:              64,
	}
}

// ValidateBasic performs basic validation.
func (p Params) ValidateBasic() error {
	switch {
	case p.MaxUnrewardedRelayerEntries == 0:
		return errors.New("max_unrewarded_relayer_entries must be positive")
	case p.MaxUnconfirmedMessages == 0:
		return errors.New("max_unconfirmed_messages must be positive")
	case p.ProofCacheSize <= 0:
		return errors.New("proof_cache_size must be positive")
	}
	return nil
}

// Header is a header of a simulated chain.
type Header struct {
	Height uint64     `json:"height"`
	Parent types.Hash `json:"parent"`
	// Root is the merkle root of the lane state at this header.
	Root []byte    `json:"root"`
	Time time.Time `json:"time"`
	// Peer is the best peer header imported at this header.
	Peer *types.HeaderID `json:"peer,omitempty"`
}

// Hash returns the header hash.
func (h Header) Hash() types.Hash {
	return sha256.Sum256(headerPreimage(h))
}

// ID returns the header id.
func (h Header) ID() types.HeaderID {
	return types.NewHeaderID(h.Height, h.Hash())
}

// LaneState is the state of both lanes of a chain at a header.
type LaneState struct {
	Outbound lane.OutboundLaneState `json:"outbound"`
	Inbound  lane.InboundLaneState  `json:"inbound"`
	// Peer is the best imported peer header.
	Peer *types.HeaderID `json:"peer,omitempty"`
	// Rewards are the rewards paid to relayers for confirmed deliveries.
	Rewards map[string]uint64 `json:"rewards,omitempty"`
}

// Copy returns a deep copy of the state.
func (s LaneState) Copy() LaneState {
	c := s
	if s.Inbound.Relayers != nil {
		c.Inbound.Relayers = append([]lane.UnrewardedRelayer(nil), s.Inbound.Relayers...)
	}
	if s.Peer != nil {
		peer := *s.Peer
		c.Peer = &peer
	}
	if s.Rewards != nil {
		c.Rewards = make(map[string]uint64, len(s.Rewards))
		for k, v := range s.Rewards {
			c.Rewards[k] = v
		}
	}
	return c
}

// undelivered returns the messages that the target has not confirmed yet.
func (s LaneState) undelivered() types.NonceRange {
	return types.NewNonceRange(s.Outbound.LatestReceivedNonce+1, s.Outbound.LatestGeneratedNonce)
}

type txResult struct {
	included bool
	height   uint64
	err      error
	dropped  bool
}

// Chain is a simulated ledger backed by a tm-db database.
type Chain struct {
	name   string
	params Params
	logger log.Logger

	mtx       sync.RWMutex
	db        dbm.DB
	best      Header
	bestState LaneState
	pending   []transaction
	txs       map[string]*txResult
	notify    chan struct{}

	trees *lru.Cache
	now   func() time.Time
}

// NewChain opens the chain stored in db, or creates the genesis header if
// db is empty.
func NewChain(name string, db dbm.DB, params Params, logger log.Logger) (*Chain, error) {
	if err := params.ValidateBasic(); err != nil {
		return nil, err
	}
	trees, err := lru.New(params.ProofCacheSize)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		name:   name,
		params: params,
		logger: logger.With("module", "ledger", "chain", name),
		db:     db,
		txs:    make(map[string]*txResult),
		notify: make(chan struct{}),
		trees:  trees,
		now:    func() time.Time { return time.Now().UTC() },
	}

	best, ok, err := c.loadBestHeader()
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := c.commit(newBlockContext(c, LaneState{}), 0, types.Hash{}, genesisTime); err != nil {
			return nil, fmt.Errorf("failed to write genesis: %w", err)
		}
		return c, nil
	}

	st, err := c.loadState(best.Height)
	if err != nil {
		return nil, err
	}
	c.best, c.bestState = best, st
	return c, nil
}

// Name returns the chain name.
func (c *Chain) Name() string { return c.name }

// Params returns the chain params.
func (c *Chain) Params() Params { return c.params }

// Best returns the best header.
func (c *Chain) Best() Header {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.best
}

// BestState returns the lane state at the best header.
func (c *Chain) BestState() LaneState {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.bestState.Copy()
}

// Finalized returns the best finalized header.
func (c *Chain) Finalized() (Header, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.loadHeader(c.finalizedHeight())
}

// State returns the state of the chain as seen by a lane client.
func (c *Chain) State() (lane.SourceClientState, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	finalized, err := c.loadHeader(c.finalizedHeight())
	if err != nil {
		return lane.SourceClientState{}, err
	}
	st := lane.SourceClientState{
		BestSelf:          c.best.ID(),
		BestFinalizedSelf: finalized.ID(),
	}
	if c.bestState.Peer != nil {
		peer := *c.bestState.Peer
		st.BestFinalizedPeerAtBestSelf = &peer
	}
	return st, nil
}

// HeaderByID returns the header with the given id.
func (c *Chain) HeaderByID(id types.HeaderID) (Header, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	h, _, err := c.stateAt(id)
	return h, err
}

// StateAt returns the lane state at the given header.
func (c *Chain) StateAt(id types.HeaderID) (LaneState, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	_, st, err := c.stateAt(id)
	return st, err
}

// SendMessage queues a message to be sent over the outbound lane by the
// next header.
func (c *Chain) SendMessage(payload []byte, dispatchWeight, reward uint64) (*TxTracker, error) {
	return c.submit(sendMessage{payload: payload, weight: dispatchWeight, reward: reward})
}

// Advance produces the next header. Pending transactions are applied in
// order. A failed transaction is still included, but has no effect.
func (c *Chain) Advance() (Header, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	height := c.best.Height + 1
	bc := newBlockContext(c, c.bestState)
	for _, tx := range c.pending {
		next := bc.clone()
		res := c.txs[tx.id]
		res.included, res.height = true, height
		if res.err = tx.apply(next); res.err != nil {
			c.logger.Debug("transaction failed", "tx", tx.id, "height", height, "err", res.err)
			continue
		}
		bc = next
	}
	txs := len(c.pending)
	c.pending = nil

	if err := c.commit(bc, height, c.best.Hash(), c.now()); err != nil {
		return Header{}, err
	}
	c.logger.Debug("committed header", "header", c.best.ID(), "txs", txs)
	return c.best, nil
}

// Run produces a header every blockTime until ctx is canceled.
func (c *Chain) Run(ctx context.Context, blockTime time.Duration) error {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Advance(); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
		}
	}
}

// DropPending drops all pending transactions. Their trackers report them as
// lost. It returns the number of dropped transactions.
func (c *Chain) DropPending() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	n := len(c.pending)
	for _, tx := range c.pending {
		c.txs[tx.id].dropped = true
	}
	c.pending = nil
	if n > 0 {
		c.notifyLocked()
	}
	return n
}

// TxError returns the error the transaction has failed with, once it has
// been included.
func (c *Chain) TxError(id string) (included bool, err error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	res, ok := c.txs[id]
	if !ok {
		return false, nil
	}
	return res.included, res.err
}

// GeneratedMessages returns the details of the messages in nonces that are
// not confirmed yet at the given header.
func (c *Chain) GeneratedMessages(id types.HeaderID, nonces types.NonceRange) (lane.MessageDetailsList, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	_, st, err := c.stateAt(id)
	if err != nil {
		return nil, err
	}
	undelivered := st.undelivered()

	var details lane.MessageDetailsList
	for n := nonces.First; !nonces.IsEmpty() && n <= nonces.Last; n++ {
		if n > undelivered.Last {
			break
		}
		if !undelivered.Contains(n) {
			continue
		}
		msg, err := c.loadMessage(n)
		if err != nil {
			return nil, err
		}
		details = append(details, msg.MessageDetails)
	}
	return details, nil
}

// ProveMessages proves the messages in nonces at the given header. Nonces
// that have already been confirmed are left out of the proof, so the proved
// range is returned.
func (c *Chain) ProveMessages(
	id types.HeaderID,
	nonces types.NonceRange,
	withOutboundState bool,
) (types.NonceRange, lane.MessagesProof, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	h, st, err := c.stateAt(id)
	if err != nil {
		return nonces, lane.MessagesProof{}, err
	}
	undelivered := st.undelivered()
	if !nonces.IsEmpty() {
		if nonces.Last > st.Outbound.LatestGeneratedNonce {
			return nonces, lane.MessagesProof{}, fmt.Errorf("%w: %v at %v", ErrUnknownNonces, nonces, id)
		}
		if nonces.First < undelivered.First {
			nonces.First = undelivered.First
		}
	}

	t, err := c.treeAt(h, st)
	if err != nil {
		return nonces, lane.MessagesProof{}, err
	}

	proof := lane.MessagesProof{Lane: c.params.Lane, At: id, Nonces: nonces}
	for n := nonces.First; !nonces.IsEmpty() && n <= nonces.Last; n++ {
		msg, err := c.loadMessage(n)
		if err != nil {
			return nonces, lane.MessagesProof{}, err
		}
		proof.Messages = append(proof.Messages, msg)
		proof.MessageProofs = append(proof.MessageProofs, t.messageProof(n))
	}
	if withOutboundState {
		outbound := st.Outbound
		proof.OutboundState = &outbound
		proof.OutboundStateProof = t.proofs[outboundLeafIndex]
	}
	return nonces, proof, nil
}

// ProveInbound proves the inbound lane state at the given header.
func (c *Chain) ProveInbound(id types.HeaderID) (lane.MessagesReceivingProof, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	h, st, err := c.stateAt(id)
	if err != nil {
		return lane.MessagesReceivingProof{}, err
	}
	t, err := c.treeAt(h, st)
	if err != nil {
		return lane.MessagesReceivingProof{}, err
	}
	return lane.MessagesReceivingProof{
		Lane:  c.params.Lane,
		At:    id,
		State: st.Inbound,
		Proof: t.proofs[inboundLeafIndex],
	}, nil
}

// submit checks the transaction against the best state and queues it.
func (c *Chain) submit(actions ...action) (*TxTracker, error) {
	tx := newTransaction(actions...)

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := tx.apply(newBlockContext(c, c.bestState)); err != nil {
		return nil, err
	}
	c.pending = append(c.pending, tx)
	c.txs[tx.id] = &txResult{}
	c.logger.Debug("accepted transaction", "tx", tx.id, "actions", len(actions))
	return &TxTracker{chain: c, id: tx.id}, nil
}

// txStatus returns the status of the transaction once it is known, and
// otherwise a channel that is closed on the next change of the chain.
func (c *Chain) txStatus(id string) (*TxStatus, <-chan struct{}, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	res, ok := c.txs[id]
	switch {
	case !ok || res.dropped:
		lost := TxStatus{}
		return &lost, nil, nil
	case res.included && res.height <= c.finalizedHeight():
		h, err := c.loadHeader(res.height)
		if err != nil {
			return nil, nil, err
		}
		status := TxStatus{Finalized: true, At: h.ID()}
		return &status, nil, nil
	}
	return nil, c.notify, nil
}

func (c *Chain) finalizedHeight() uint64 {
	if c.best.Height < c.params.FinalityDepth {
		return 0
	}
	return c.best.Height - c.params.FinalityDepth
}

// commit writes the header at the given height, together with everything
// the block context has staged. Must be called with the lock held.
func (c *Chain) commit(bc *blockContext, height uint64, parent types.Hash, now time.Time) error {
	t, err := buildTree(c.params.Lane, bc.state, bc.message)
	if err != nil {
		return err
	}

	h := Header{Height: height, Parent: parent, Root: t.root, Time: now, Peer: bc.state.Peer}
	hash := h.Hash()

	batch := c.db.NewBatch()
	defer batch.Close()

	for n, msg := range bc.messages {
		bz, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := batch.Set(messageKey(n), bz); err != nil {
			return err
		}
	}
	for height, peer := range bc.peers {
		bz, err := json.Marshal(peer)
		if err != nil {
			return err
		}
		if err := batch.Set(peerHeaderKey(height), bz); err != nil {
			return err
		}
	}
	stBz, err := json.Marshal(bc.state)
	if err != nil {
		return err
	}
	if err := batch.Set(stateKey(h.Height), stBz); err != nil {
		return err
	}
	hBz, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := batch.Set(headerKey(h.Height), hBz); err != nil {
		return err
	}
	if err := batch.WriteSync(); err != nil {
		return err
	}

	c.best, c.bestState = h, bc.state
	c.trees.Add(hash, t)
	c.notifyLocked()
	return nil
}

func (c *Chain) notifyLocked() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// stateAt loads the header with the given id and the lane state at it.
func (c *Chain) stateAt(id types.HeaderID) (Header, LaneState, error) {
	if id.Number > c.best.Height {
		return Header{}, LaneState{}, fmt.Errorf("%w: %v", ErrUnknownHeader, id)
	}
	h, err := c.loadHeader(id.Number)
	if err != nil {
		return Header{}, LaneState{}, err
	}
	if h.Hash() != id.Hash {
		return Header{}, LaneState{}, fmt.Errorf("%w: %v", ErrUnknownHeader, id)
	}
	st, err := c.loadState(id.Number)
	if err != nil {
		return Header{}, LaneState{}, err
	}
	return h, st, nil
}

func (c *Chain) treeAt(h Header, st LaneState) (*laneTree, error) {
	hash := h.Hash()
	if t, ok := c.trees.Get(hash); ok {
		return t.(*laneTree), nil
	}
	t, err := buildTree(c.params.Lane, st, c.loadMessage)
	if err != nil {
		return nil, err
	}
	c.trees.Add(hash, t)
	return t, nil
}

//----------------------------------------
// storage

func (c *Chain) loadBestHeader() (Header, bool, error) {
	iter, err := c.db.ReverseIterator(headerKey(0), headerKey(math.MaxUint64))
	if err != nil {
		return Header{}, false, err
	}
	defer iter.Close()

	if !iter.Valid() {
		return Header{}, false, iter.Error()
	}
	var h Header
	if err := json.Unmarshal(iter.Value(), &h); err != nil {
		return Header{}, false, fmt.Errorf("failed to decode header: %w", err)
	}
	return h, true, nil
}

func (c *Chain) loadHeader(height uint64) (Header, error) {
	var h Header
	err := c.loadJSON(headerKey(height), &h)
	return h, err
}

func (c *Chain) loadState(height uint64) (LaneState, error) {
	var st LaneState
	err := c.loadJSON(stateKey(height), &st)
	return st, err
}

func (c *Chain) loadMessage(n types.Nonce) (lane.Message, error) {
	var msg lane.Message
	err := c.loadJSON(messageKey(n), &msg)
	return msg, err
}

func (c *Chain) loadPeerHeader(height uint64) (Header, bool, error) {
	bz, err := c.db.Get(peerHeaderKey(height))
	if err != nil || bz == nil {
		return Header{}, false, err
	}
	var h Header
	if err := json.Unmarshal(bz, &h); err != nil {
		return Header{}, false, err
	}
	return h, true, nil
}

func (c *Chain) loadJSON(key []byte, v interface{}) error {
	bz, err := c.db.Get(key)
	if err != nil {
		return err
	}
	if bz == nil {
		return fmt.Errorf("value at key %X not found", key)
	}
	return json.Unmarshal(bz, v)
}

// Messages returns every stored message of the outbound lane, confirmed
// ones included.
func (c *Chain) Messages() ([]lane.Message, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	start, end := messageKey(0), messageKey(math.MaxUint64)
	iter, err := c.db.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var msgs []lane.Message
	for ; iter.Valid(); iter.Next() {
		n, err := decodeMessageKey(iter.Key())
		if err != nil {
			return nil, err
		}
		var msg lane.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return nil, fmt.Errorf("message %d: %w", n, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, iter.Error()
}
