package transform

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/geocode"
	"inkwell-pipeline/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Config{}, nil)
	require.Error(t, err)
	require.True(t, etl.IsFatal(err))

	_, err = NewEngine(Config{
		TargetCurrency: "EUR",
		Confidential:   map[string]string{"phone": "redact"},
	}, nil)
	require.Error(t, err)
	require.True(t, etl.IsFatal(err))

	_, err = NewEngine(Config{
		TargetCurrency: "EUR",
		Confidential:   map[string]string{"owner_name": "hash"},
	}, nil)
	require.Error(t, err, "hashing without a salt must be refused")

	_, err = NewEngine(Config{
		TargetCurrency: "EUR",
		FieldPolicy:    map[string]string{"bookstore.name": "whoever_shouts_loudest"},
	}, nil)
	require.Error(t, err)
}

func rawRecord(t *testing.T, sourceID, naturalKey string, payload any) etl.RawRecord {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return etl.RawRecord{
		SourceID:     sourceID,
		NaturalKey:   naturalKey,
		Payload:      raw,
		FetchedAt:    time.Now(),
		AttemptCount: 1,
	}
}

func TestEngineRun(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:transform")
	defer cleanup()

	engine, err := NewEngine(Config{
		TargetCurrency: "EUR",
		Rates:          map[string]float64{"GBP": 1.17},
		Confidential: map[string]string{
			"contact_email": "drop",
			"owner_name":    "hash",
			"phone":         "drop",
		},
		PseudonymSalt: "test-salt",
	}, &fakeGeocoder{results: map[string]geocode.Result{
		"1 Main St Paris": {Latitude: 48.8566, Longitude: 2.3522, Locality: "Paris, France"},
	}})
	require.NoError(t, err)

	records := []etl.RawRecord{
		rawRecord(t, "site-quotes", "quote:abc", map[string]any{
			"type":       "quote",
			"text":       "The world as we have created it is a process of our thinking.",
			"author":     "Albert Einstein",
			"author_url": "/author/Albert-Einstein",
			"tags":       []string{"change", "world"},
		}),
		rawRecord(t, "site-quotes", "/author/Albert-Einstein", map[string]any{
			"type":      "author",
			"name":      "Albert Einstein",
			"born_date": "March 14, 1879",
			"bio":       "A theoretical physicist.",
			"url":       "/author/Albert-Einstein",
		}),
		rawRecord(t, "site-books", "/catalogue/book_1/index.html", map[string]any{
			"title":    "A Light in the Attic",
			"price":    "10.99",
			"currency": "GBP",
			"rating":   3,
			"url":      "/catalogue/book_1/index.html",
		}),
		rawRecord(t, "file-bookstores", "store:S001", map[string]any{
			"store_id":      "S001",
			"name":          "Librairie A",
			"address":       "1 Main St",
			"city":          "Paris",
			"country":       "FR",
			"currency":      "EUR",
			"avg_price":     "12.50",
			"contact_email": "a@example.com",
			"owner_name":    "Jane Doe",
			"phone":         "+33 1 00 00 00 01",
		}),
	}

	batch, rejects, err := engine.Run(context.Background(), records)
	require.NoError(t, err)
	require.Empty(t, rejects)

	byKey := map[string]etl.Entity{}
	for _, e := range batch.Entities {
		byKey[e.DedupKey] = e
	}

	// quote, author (stub merged with page), two tags, book, store
	require.Len(t, batch.Entities, 6)

	author := byKey["author:albert einstein"]
	require.Equal(t, "1879-03-14", author.Str("born_date"))
	require.Equal(t, "A theoretical physicist.", author.Str("bio"))

	book := byKey["book:a light in the attic"]
	price, _ := book.Float("price")
	require.Equal(t, 12.86, price)
	require.Equal(t, "EUR", book.Str("currency"))

	store := byKey["store:librairie a|paris"]
	require.Equal(t, etl.EnrichmentResolved, store.Enrichment)
	_, hasEmail := store.Fields["contact_email"]
	require.False(t, hasEmail)
	require.NotEqual(t, "Jane Doe", store.Str("owner_name"))

	require.Len(t, batch.Relations, 2)
	for _, r := range batch.Relations {
		require.Equal(t, etl.RelQuoteTag, r.Kind)
	}
}

func TestEngineRunUnknownSource(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:transform")
	defer cleanup()

	engine, err := NewEngine(Config{TargetCurrency: "EUR"}, nil)
	require.NoError(t, err)

	_, _, err = engine.Run(context.Background(), []etl.RawRecord{
		{SourceID: "source-nobody-configured", Payload: json.RawMessage(`{}`)},
	})
	require.Error(t, err)
	require.True(t, etl.IsFatal(err))
}

// re-running the engine over the same staged records yields the same
// batch, there is no hidden state between runs
func TestEngineRunIsPure(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:transform")
	defer cleanup()

	engine, err := NewEngine(Config{
		TargetCurrency: "EUR",
		Rates:          map[string]float64{"GBP": 1.17},
	}, nil)
	require.NoError(t, err)

	records := []etl.RawRecord{
		rawRecord(t, "site-books", "/catalogue/book_1/index.html", map[string]any{
			"title":    "A Light in the Attic",
			"price":    "10.99",
			"currency": "GBP",
		}),
	}

	first, _, err := engine.Run(context.Background(), records)
	require.NoError(t, err)
	second, _, err := engine.Run(context.Background(), records)
	require.NoError(t, err)

	require.Equal(t, len(first.Entities), len(second.Entities))
	require.Equal(t, first.Entities[0].Fields, second.Entities[0].Fields)
}
