package pooling

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/google/uuid"
)

// ContributionRecorded describes one accepted contribution for external
// observers: who sent how much to which group, who may eventually withdraw,
// and the group's collected amount after the contribution was applied.
//
// Exactly one notification is emitted per successful deposit, after its
// transaction has committed.
type ContributionRecorded struct {
	GroupID               uuid.UUID
	Sender                uuid.UUID
	Withdrawer            uuid.UUID
	Amount                AmountInt64
	NewCollectedAmount    AmountInt64
	TargetAmountCollected bool
	OccurredAt            time.Time
}

// PayloadToJSON serializes the notification for observers that forward it to
// external systems (message brokers, audit sinks, webhooks).
func (c ContributionRecorded) PayloadToJSON() ([]byte, error) {
	return jsoniter.ConfigFastest.Marshal(c)
}

// ContributionObserver receives one ContributionRecorded notification per
// successful deposit.
//
// The observer is invoked after the deposit transaction has committed, so a
// panicking or slow observer can not roll back or block the bookkeeping
// itself. Implementations must not assume delivery ordering across groups.
type ContributionObserver interface {
	ContributionRecorded(ctx context.Context, contribution ContributionRecorded)
}
