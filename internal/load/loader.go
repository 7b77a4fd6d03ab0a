// Package load maps canonical entities onto the normalized warehouse
// schema with idempotent upsert semantics. The load ledger, living in
// the same database and transaction as the target tables, decides
// insert versus update.
package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/load/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("load")

type Report struct {
	Inserted int
	Updated  int
	Rejected int
}

// referenced kinds come before referencing kinds, declared once
var loadOrder = []etl.Kind{
	etl.KindAuthor,
	etl.KindTag,
	etl.KindQuote,
	etl.KindBook,
	etl.KindBookstore,
}

type Loader struct {
	db  *sql.DB
	qry *db.Queries
}

func NewLoader(database *sql.DB) Loader {
	return Loader{
		db:  database,
		qry: db.New(database),
	}
}

// Load upserts a transformed batch inside a single transaction. On an
// unrecoverable error the whole batch rolls back, leaving ledger and
// target schema untouched, so a failed load can be retried from
// scratch. Record-level referential problems become rejects, not batch
// failures.
func (l Loader) Load(ctx context.Context, entities []etl.Entity, relations []etl.Relation) (Report, []etl.Reject, error) {
	ctx, span := tracer.Start(ctx, "loader:Load")
	defer span.End()
	span.SetAttributes(
		attribute.Int("entities", len(entities)),
		attribute.Int("relations", len(relations)),
	)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, nil, err
	}
	defer tx.Rollback()
	txqry := l.qry.WithTx(tx)

	byKind := map[etl.Kind][]etl.Entity{}
	for _, e := range entities {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}
	for kind := range byKind {
		if !knownKind(kind) {
			return Report{}, nil, etl.ConfigurationError{
				Reason: fmt.Sprintf("no load mapping for entity kind %q", kind),
			}
		}
	}

	var report Report
	var rejects []etl.Reject

	for _, kind := range loadOrder {
		for _, e := range byKind[kind] {
			outcome, err := l.upsert(ctx, txqry, e)
			if err != nil {
				var ref etl.ReferentialIntegrityError
				if errors.As(err, &ref) {
					report.Rejected++
					rejects = append(rejects, etl.Reject{
						NaturalKey: e.DedupKey,
						Stage:      "load",
						Reason:     err.Error(),
					})
					continue
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return Report{}, nil, fmt.Errorf("load %s %q: %w", e.Kind, e.DedupKey, err)
			}
			if outcome == outcomeInserted {
				report.Inserted++
			} else {
				report.Updated++
			}
		}
	}

	for _, r := range relations {
		err := l.loadRelation(ctx, txqry, r)
		if err != nil {
			var ref etl.ReferentialIntegrityError
			if errors.As(err, &ref) {
				report.Rejected++
				rejects = append(rejects, etl.Reject{
					NaturalKey: r.LeftKey + "+" + r.RightKey,
					Stage:      "load",
					Reason:     err.Error(),
				})
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Report{}, nil, fmt.Errorf("load relation: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, nil, err
	}

	span.SetAttributes(
		attribute.Int("inserted", report.Inserted),
		attribute.Int("updated", report.Updated),
		attribute.Int("rejected", report.Rejected),
	)
	return report, rejects, nil
}

func knownKind(kind etl.Kind) bool {
	for _, k := range loadOrder {
		if k == kind {
			return true
		}
	}
	return false
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeUpdated
)

func (l Loader) upsert(ctx context.Context, q *db.Queries, e etl.Entity) (outcome, error) {
	pk, err := q.GetLedgerEntry(ctx, db.GetLedgerEntryParams{
		Kind:     string(e.Kind),
		DedupKey: e.DedupKey,
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	exists := err == nil

	if exists {
		err = l.update(ctx, q, pk, e)
		if err != nil {
			return 0, err
		}
		return outcomeUpdated, nil
	}

	pk, err = l.insert(ctx, q, e)
	if err != nil {
		return 0, err
	}
	err = q.CreateLedgerEntry(ctx, db.CreateLedgerEntryParams{
		Kind:     string(e.Kind),
		DedupKey: e.DedupKey,
		TargetPk: pk,
	})
	if err != nil {
		return 0, err
	}
	return outcomeInserted, nil
}

func (l Loader) insert(ctx context.Context, q *db.Queries, e etl.Entity) (int64, error) {
	switch e.Kind {
	case etl.KindAuthor:
		return q.CreateAuthor(ctx, authorParams(e))
	case etl.KindTag:
		return q.CreateTag(ctx, e.Str("name"))
	case etl.KindQuote:
		authorID, err := l.resolveRef(ctx, q, etl.KindAuthor, e.Str("author_key"))
		if err != nil {
			return 0, err
		}
		return q.CreateQuote(ctx, db.CreateQuoteParams{
			Text:     e.Str("text"),
			AuthorID: authorID,
		})
	case etl.KindBook:
		return q.CreateBook(ctx, bookParams(e))
	case etl.KindBookstore:
		return q.CreateBookstore(ctx, bookstoreParams(e))
	}
	return 0, etl.ConfigurationError{Reason: fmt.Sprintf("no insert for kind %q", e.Kind)}
}

func (l Loader) update(ctx context.Context, q *db.Queries, pk int64, e etl.Entity) error {
	switch e.Kind {
	case etl.KindAuthor:
		p := authorParams(e)
		return q.UpdateAuthor(ctx, db.UpdateAuthorParams{
			Name:         p.Name,
			BornDate:     p.BornDate,
			BornLocation: p.BornLocation,
			Url:          p.Url,
			Bio:          p.Bio,
			AuthorID:     pk,
		})
	case etl.KindTag:
		return q.UpdateTag(ctx, db.UpdateTagParams{Name: e.Str("name"), TagID: pk})
	case etl.KindQuote:
		authorID, err := l.resolveRef(ctx, q, etl.KindAuthor, e.Str("author_key"))
		if err != nil {
			return err
		}
		return q.UpdateQuote(ctx, db.UpdateQuoteParams{
			Text:     e.Str("text"),
			AuthorID: authorID,
			QuoteID:  pk,
		})
	case etl.KindBook:
		p := bookParams(e)
		return q.UpdateBook(ctx, db.UpdateBookParams{
			Title:        p.Title,
			PriceEur:     p.PriceEur,
			Availability: p.Availability,
			Rating:       p.Rating,
			Url:          p.Url,
			BookID:       pk,
		})
	case etl.KindBookstore:
		p := bookstoreParams(e)
		return q.UpdateBookstore(ctx, db.UpdateBookstoreParams{
			Name:             p.Name,
			City:             p.City,
			Country:          p.Country,
			AvgPriceEur:      p.AvgPriceEur,
			Latitude:         p.Latitude,
			Longitude:        p.Longitude,
			Locality:         p.Locality,
			EnrichmentStatus: p.EnrichmentStatus,
			StoreID:          pk,
		})
	}
	return etl.ConfigurationError{Reason: fmt.Sprintf("no update for kind %q", e.Kind)}
}

// resolveRef turns a dedup key reference into the referenced row's
// primary key, a miss is a referential-integrity rejection.
func (l Loader) resolveRef(ctx context.Context, q *db.Queries, kind etl.Kind, dedupKey string) (int64, error) {
	if dedupKey == "" {
		return 0, etl.ReferentialIntegrityError{Kind: kind, DedupKey: dedupKey}
	}
	pk, err := q.GetLedgerEntry(ctx, db.GetLedgerEntryParams{
		Kind:     string(kind),
		DedupKey: dedupKey,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, etl.ReferentialIntegrityError{Kind: kind, DedupKey: dedupKey}
	}
	if err != nil {
		return 0, err
	}
	return pk, nil
}

// relations load only after both endpoints have confirmed primary keys
func (l Loader) loadRelation(ctx context.Context, q *db.Queries, r etl.Relation) error {
	if r.Kind != etl.RelQuoteTag {
		return etl.ConfigurationError{Reason: fmt.Sprintf("no load mapping for relation kind %q", r.Kind)}
	}
	quoteID, err := l.resolveRef(ctx, q, r.LeftKind, r.LeftKey)
	if err != nil {
		return err
	}
	tagID, err := l.resolveRef(ctx, q, r.RightKind, r.RightKey)
	if err != nil {
		return err
	}
	return q.CreateQuoteTag(ctx, db.CreateQuoteTagParams{
		QuoteID: quoteID,
		TagID:   tagID,
	})
}

func authorParams(e etl.Entity) db.CreateAuthorParams {
	url := sql.NullString{}
	if u := e.Str("url"); u != "" {
		url = sql.NullString{String: u, Valid: true}
	}
	return db.CreateAuthorParams{
		Name:         e.Str("name"),
		BornDate:     e.Str("born_date"),
		BornLocation: e.Str("born_location"),
		Url:          url,
		Bio:          e.Str("bio"),
	}
}

func bookParams(e etl.Entity) db.CreateBookParams {
	price := sql.NullFloat64{}
	if v, ok := e.Float("price"); ok {
		price = sql.NullFloat64{Float64: v, Valid: true}
	}
	rating := int64(0)
	if v, ok := e.Float("rating"); ok {
		rating = int64(v)
	}
	return db.CreateBookParams{
		Title:        e.Str("title"),
		PriceEur:     price,
		Availability: e.Str("availability"),
		Rating:       rating,
		Url:          e.Str("url"),
	}
}

func bookstoreParams(e etl.Entity) db.CreateBookstoreParams {
	nullFloat := func(name string) sql.NullFloat64 {
		v, ok := e.Float(name)
		if !ok {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: v, Valid: true}
	}
	return db.CreateBookstoreParams{
		Name:             e.Str("name"),
		City:             e.Str("city"),
		Country:          e.Str("country"),
		AvgPriceEur:      nullFloat("avg_price"),
		Latitude:         nullFloat("latitude"),
		Longitude:        nullFloat("longitude"),
		Locality:         e.Str("locality"),
		EnrichmentStatus: string(e.Enrichment),
	}
}
