package ledger

import (
	"fmt"

	"github.com/google/orderedcode"

	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/types"
)

//----------------------------------------
// key prefixes
// NB: Before modifying these, cross-check them with the ranges iterated in
// chain.go.

const (
	prefixHeader     = int64(0)
	prefixState      = int64(1)
	prefixMessage    = int64(2)
	prefixPeerHeader = int64(3)
)

func headerKey(height uint64) []byte {
	key, err := orderedcode.Append(nil, prefixHeader, height)
	if err != nil {
		panic(err)
	}
	return key
}

func stateKey(height uint64) []byte {
	key, err := orderedcode.Append(nil, prefixState, height)
	if err != nil {
		panic(err)
	}
	return key
}

func messageKey(nonce types.Nonce) []byte {
	key, err := orderedcode.Append(nil, prefixMessage, nonce)
	if err != nil {
		panic(err)
	}
	return key
}

func decodeMessageKey(key []byte) (types.Nonce, error) {
	var (
		prefix int64
		nonce  uint64
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &nonce)
	if err != nil {
		return 0, err
	}
	if remaining != "" {
		return 0, fmt.Errorf("expected complete key but also got %v", remaining)
	}
	if prefix != prefixMessage {
		return 0, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefixMessage, prefix)
	}
	return nonce, nil
}

func peerHeaderKey(height uint64) []byte {
	key, err := orderedcode.Append(nil, prefixPeerHeader, height)
	if err != nil {
		panic(err)
	}
	return key
}

//----------------------------------------
// merkle leaves

const (
	leafOutbound = "outbound"
	leafInbound  = "inbound"
	leafMessage  = "message"
)

// outboundLeaf encodes the outbound lane state as a merkle leaf.
func outboundLeaf(id lane.ID, st lane.OutboundLaneState) []byte {
	leaf, err := orderedcode.Append(nil, leafOutbound, string(id[:]),
		st.LatestGeneratedNonce, st.LatestReceivedNonce)
	if err != nil {
		panic(err)
	}
	return leaf
}

// inboundLeaf encodes the inbound lane state as a merkle leaf.
func inboundLeaf(id lane.ID, st lane.InboundLaneState) []byte {
	leaf, err := orderedcode.Append(nil, leafInbound, string(id[:]),
		st.LatestReceivedNonce, st.LatestConfirmedNonce, uint64(len(st.Relayers)))
	if err != nil {
		panic(err)
	}
	for _, r := range st.Relayers {
		leaf, err = orderedcode.Append(leaf, r.Relayer, r.Messages.First, r.Messages.Last)
		if err != nil {
			panic(err)
		}
	}
	return leaf
}

// messageLeaf encodes a message as a merkle leaf.
func messageLeaf(id lane.ID, msg lane.Message) []byte {
	leaf, err := orderedcode.Append(nil, leafMessage, string(id[:]),
		msg.Nonce, msg.DispatchWeight, uint64(msg.Size), msg.Reward, string(msg.Payload))
	if err != nil {
		panic(err)
	}
	return leaf
}

// headerPreimage is hashed into the header hash.
func headerPreimage(h Header) []byte {
	var peerHeight uint64
	var peerHash types.Hash
	if h.Peer != nil {
		peerHeight, peerHash = h.Peer.Number, h.Peer.Hash
	}
	bz, err := orderedcode.Append(nil, h.Height, string(h.Parent[:]), string(h.Root),
		h.Time.UnixNano(), peerHeight, string(peerHash[:]))
	if err != nil {
		panic(err)
	}
	return bz
}
