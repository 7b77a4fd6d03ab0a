package etl

import (
	"encoding/json"
	"time"
)

// RawRecord is the unit of extraction. It is written to staging exactly
// as the source produced it and never mutated afterwards, a re-fetch of
// the same natural key produces a new row with a later FetchedAt.
type RawRecord struct {
	SourceID     string
	NaturalKey   string
	Payload      json.RawMessage
	FetchedAt    time.Time
	AttemptCount int
}

// StagingBatch is the metadata of one adapter invocation's worth of
// raw records, the unit of replay.
type StagingBatch struct {
	ID        string
	SourceID  string
	CreatedAt time.Time
}

// Reject is a record that was refused by some stage. Rejects carry
// enough context to be replayed after a fix without re-extracting.
type Reject struct {
	SourceID   string
	NaturalKey string
	Stage      string
	Reason     string
	Payload    json.RawMessage
}
