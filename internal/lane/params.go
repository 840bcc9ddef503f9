package lane

import (
	"errors"
	"fmt"
	"time"
)

// Params configures a lane loop.
type Params struct {
	// Lane is the id of the lane the loop is serving.
	Lane ID
	// SourceTick is the interval at which the source state is read.
	SourceTick time.Duration
	// TargetTick is the interval at which the target state is read.
	TargetTick time.Duration
	// ReconnectDelay is the delay between a lane loop failure and the
	// next attempt.
	ReconnectDelay time.Duration
	// Delivery configures the delivery race.
	Delivery DeliveryParams
}

// DeliveryParams configures the messages delivery race.
type DeliveryParams struct {
	// MaxUnrewardedRelayerEntriesAtTarget is the number of unrewarded
	// relayer entries after which the target rejects new messages, until
	// rewards are proved to it.
	MaxUnrewardedRelayerEntriesAtTarget uint64
	// MaxUnconfirmedNoncesAtTarget is the number of delivered but
	// unconfirmed messages after which the target rejects new messages.
	MaxUnconfirmedNoncesAtTarget uint64
	// MaxMessagesInSingleBatch limits the number of messages in a single
	// delivery transaction.
	MaxMessagesInSingleBatch uint64
	// MaxMessagesWeightInSingleBatch limits the total dispatch weight of a
	// single delivery transaction.
	MaxMessagesWeightInSingleBatch uint64
	// MaxMessagesSizeInSingleBatch limits the total size of the messages of
	// a single delivery transaction.
	MaxMessagesSizeInSingleBatch uint32
}

// ValidateBasic performs basic validation.
func (p Params) ValidateBasic() error {
	if p.SourceTick <= 0 {
		return errors.New("source tick must be positive")
	}
	if p.TargetTick <= 0 {
		return errors.New("target tick must be positive")
	}
	if p.ReconnectDelay < 0 {
		return errors.New("reconnect delay can't be negative")
	}
	if err := p.Delivery.ValidateBasic(); err != nil {
		return fmt.Errorf("error in delivery params: %w", err)
	}
	return nil
}

// ValidateBasic performs basic validation.
func (p DeliveryParams) ValidateBasic() error {
	switch {
	case p.MaxUnrewardedRelayerEntriesAtTarget == 0:
		return errors.New("max_unrewarded_relayer_entries_at_target must be positive")
	case p.MaxUnconfirmedNoncesAtTarget == 0:
		return errors.New("max_unconfirmed_nonces_at_target must be positive")
	case p.MaxMessagesInSingleBatch == 0:
		return errors.New("max_messages_in_single_batch must be positive")
	case p.MaxMessagesWeightInSingleBatch == 0:
		return errors.New("max_messages_weight_in_single_batch must be positive")
	case p.MaxMessagesSizeInSingleBatch == 0:
		return errors.New("max_messages_size_in_single_batch must be positive")
	}
	return nil
}
