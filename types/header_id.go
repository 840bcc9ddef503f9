package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashSize is the size of a header hash in bytes.
const HashSize = sha256.Size

// Hash is the content hash of a ledger header.
type Hash [HashSize]byte

// HashFromBytes copies bz into a Hash. It returns an error if bz has the
// wrong length.
func HashFromBytes(bz []byte) (Hash, error) {
	var h Hash
	if len(bz) != HashSize {
		return h, fmt.Errorf("expected %d bytes, got %d", HashSize, len(bz))
	}
	copy(h[:], bz)
	return h, nil
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	bz := make([]byte, HashSize)
	copy(bz, h[:])
	return bz
}

// IsZero reports whether the hash is all zeroes.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the first 6 bytes in upper case hex.
func (h Hash) String() string {
	return strings.ToUpper(hex.EncodeToString(h[:6]))
}

// MarshalText encodes the hash as upper case hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(hex.EncodeToString(h[:]))), nil
}

// UnmarshalText decodes a hex encoded hash.
func (h *Hash) UnmarshalText(data []byte) error {
	bz, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}
	v, err := HashFromBytes(bz)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// HeaderID identifies a finalized point in the history of a ledger: the
// header number together with the header hash. Two ids are equal only if
// both parts match, so ids of competing forks at the same height differ.
type HeaderID struct {
	Number uint64 `json:"number"`
	Hash   Hash   `json:"hash"`
}

// NewHeaderID returns a header id.
func NewHeaderID(number uint64, hash Hash) HeaderID {
	return HeaderID{Number: number, Hash: hash}
}

// Height returns the header number.
func (id HeaderID) Height() uint64 { return id.Number }

func (id HeaderID) String() string {
	return fmt.Sprintf("#%d(%v)", id.Number, id.Hash)
}

// ClientState is what a ledger currently believes about itself and about
// its peer ledger. It is produced by a state watcher of either ledger.
type ClientState[Self, Peer any] struct {
	// BestSelf is the best header of the ledger.
	BestSelf Self
	// BestFinalizedSelf is the best finalized header of the ledger.
	BestFinalizedSelf Self
	// BestFinalizedPeerAtBestSelf is the best finalized header of the peer
	// ledger that is known at BestSelf. Nil if nothing is known yet.
	BestFinalizedPeerAtBestSelf *Peer
}

func (cs ClientState[Self, Peer]) String() string {
	peer := "<nil>"
	if cs.BestFinalizedPeerAtBestSelf != nil {
		peer = fmt.Sprint(*cs.BestFinalizedPeerAtBestSelf)
	}
	return fmt.Sprintf("ClientState{best:%v finalized:%v peer:%s}",
		cs.BestSelf, cs.BestFinalizedSelf, peer)
}
