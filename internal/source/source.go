// Package source defines the shared extraction contract the three
// adapter variants (scrape, api, file) implement.
package source

import (
	"context"

	"inkwell-pipeline/internal/etl"
)

// Cursor is opaque per-adapter pagination state, "" means start from
// the beginning.
type Cursor string

// Page is one step of an extraction. Records within a page carry no
// ordering guarantee, each is self-describing via its natural key.
// Next == "" signals the source has no further pages.
type Page struct {
	Records []etl.RawRecord
	Rejects []etl.Reject
	Next    Cursor
}

type Adapter interface {
	ID() string
	Extract(ctx context.Context, cursor Cursor) (Page, error)
}
