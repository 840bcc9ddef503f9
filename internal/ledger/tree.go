package ledger

import (
	"github.com/tendermint/lanerelay/crypto/merkle"
	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/types"
)

// The lane tree has the outbound lane state, the inbound lane state and
// then every undelivered message as leaves.
const (
	outboundLeafIndex = 0
	inboundLeafIndex  = 1
	firstMessageIndex = 2
)

type laneTree struct {
	root   []byte
	proofs []*merkle.Proof
	// first is the nonce of the first message leaf.
	first types.Nonce
}

func buildTree(
	id lane.ID,
	st LaneState,
	message func(types.Nonce) (lane.Message, error),
) (*laneTree, error) {
	undelivered := st.undelivered()

	leaves := make([][]byte, firstMessageIndex, firstMessageIndex+undelivered.Len())
	leaves[outboundLeafIndex] = outboundLeaf(id, st.Outbound)
	leaves[inboundLeafIndex] = inboundLeaf(id, st.Inbound)
	for n := undelivered.First; !undelivered.IsEmpty() && n <= undelivered.Last; n++ {
		msg, err := message(n)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, messageLeaf(id, msg))
	}

	root, proofs := merkle.ProofsFromByteSlices(leaves)
	return &laneTree{root: root, proofs: proofs, first: undelivered.First}, nil
}

func (t *laneTree) messageProof(n types.Nonce) *merkle.Proof {
	return t.proofs[firstMessageIndex+int(n-t.first)]
}
