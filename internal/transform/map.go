package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/source/booksite"
	"inkwell-pipeline/internal/source/quotesite"
	"inkwell-pipeline/internal/source/storefile"
	"inkwell-pipeline/lib/textutil"
)

// MapRecords translates each raw payload into canonical entities and
// relations. Dedup keys come from normalized natural attributes so the
// same real-world entity keys identically regardless of which source
// (or page) produced it.
func MapRecords(records []etl.RawRecord) (Batch, []etl.Reject, error) {
	var batch Batch
	var rejects []etl.Reject

	for _, r := range records {
		var err error
		switch r.SourceID {
		case quotesite.SourceID:
			err = mapQuoteRecord(&batch, r)
		case booksite.SourceID:
			err = mapBookRecord(&batch, r)
		case storefile.SourceID:
			err = mapStoreRecord(&batch, r)
		default:
			return Batch{}, nil, etl.ConfigurationError{
				Reason: fmt.Sprintf("no mapper for source %q", r.SourceID),
			}
		}
		if err != nil {
			rejects = append(rejects, etl.Reject{
				SourceID:   r.SourceID,
				NaturalKey: r.NaturalKey,
				Stage:      "map",
				Reason:     err.Error(),
				Payload:    r.Payload,
			})
		}
	}

	return batch, rejects, nil
}

func AuthorKey(name string) string {
	return "author:" + textutil.NormalizeName(name)
}

func QuoteKey(text, author string) string {
	h := sha256.Sum256([]byte(
		textutil.NormalizeName(text) + "\x00" + textutil.NormalizeName(author),
	))
	return "quote:" + hex.EncodeToString(h[:8])
}

func TagKey(name string) string {
	return "tag:" + textutil.NormalizeName(name)
}

func BookKey(title string) string {
	return "book:" + textutil.NormalizeName(title)
}

func StoreKey(name, city string) string {
	return "store:" + textutil.NormalizeName(name) + "|" + textutil.NormalizeName(city)
}

func mapQuoteRecord(batch *Batch, r etl.RawRecord) error {
	var head struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(r.Payload, &head)
	if err != nil {
		return etl.ValidationError{Reason: "unparsable payload"}
	}

	switch head.Type {
	case "quote":
		var p quotesite.QuotePayload
		err = json.Unmarshal(r.Payload, &p)
		if err != nil {
			return etl.ValidationError{Reason: "unparsable payload"}
		}
		if p.Text == "" || p.Author == "" {
			return etl.ValidationError{Reason: "missing_required_field", FieldName: "text/author"}
		}

		quote := etl.NewEntity(etl.KindQuote, QuoteKey(p.Text, p.Author))
		quote.Set("text", p.Text, r.SourceID)
		quote.Set("author", p.Author, r.SourceID)
		quote.Set("author_key", AuthorKey(p.Author), r.SourceID)
		batch.Entities = append(batch.Entities, quote)

		// a stub author so the quote is loadable even when the
		// author page record is missing from the batch
		author := etl.NewEntity(etl.KindAuthor, AuthorKey(p.Author))
		author.Set("name", p.Author, r.SourceID)
		if p.AuthorURL != "" {
			author.Set("url", p.AuthorURL, r.SourceID)
		}
		batch.Entities = append(batch.Entities, author)

		for _, tag := range p.Tags {
			t := etl.NewEntity(etl.KindTag, TagKey(tag))
			t.Set("name", tag, r.SourceID)
			batch.Entities = append(batch.Entities, t)
			batch.Relations = append(batch.Relations, etl.Relation{
				Kind:      etl.RelQuoteTag,
				LeftKind:  etl.KindQuote,
				LeftKey:   quote.DedupKey,
				RightKind: etl.KindTag,
				RightKey:  t.DedupKey,
			})
		}
		return nil

	case "author":
		var p quotesite.AuthorPayload
		err = json.Unmarshal(r.Payload, &p)
		if err != nil {
			return etl.ValidationError{Reason: "unparsable payload"}
		}
		if p.Name == "" {
			return etl.ValidationError{Reason: "missing_required_field", FieldName: "name"}
		}

		author := etl.NewEntity(etl.KindAuthor, AuthorKey(p.Name))
		author.Set("name", p.Name, r.SourceID)
		author.Set("born_date", p.BornDate, r.SourceID)
		author.Set("born_location", p.BornLocation, r.SourceID)
		author.Set("bio", p.Bio, r.SourceID)
		author.Set("url", p.URL, r.SourceID)
		batch.Entities = append(batch.Entities, author)
		return nil

	default:
		return etl.ValidationError{Reason: fmt.Sprintf("unknown payload type %q", head.Type)}
	}
}

func mapBookRecord(batch *Batch, r etl.RawRecord) error {
	var p booksite.BookPayload
	err := json.Unmarshal(r.Payload, &p)
	if err != nil {
		return etl.ValidationError{Reason: "unparsable payload"}
	}
	if p.Title == "" {
		return etl.ValidationError{Reason: "missing_required_field", FieldName: "title"}
	}

	book := etl.NewEntity(etl.KindBook, BookKey(p.Title))
	book.Set("title", p.Title, r.SourceID)
	book.Set("price", p.Price, r.SourceID)
	book.Set("currency", p.Currency, r.SourceID)
	book.Set("availability", p.Availability, r.SourceID)
	book.Set("rating", float64(p.Rating), r.SourceID)
	book.Set("url", p.URL, r.SourceID)
	batch.Entities = append(batch.Entities, book)
	return nil
}

func mapStoreRecord(batch *Batch, r etl.RawRecord) error {
	var p storefile.StoreRow
	err := json.Unmarshal(r.Payload, &p)
	if err != nil {
		return etl.ValidationError{Reason: "unparsable payload"}
	}

	store := etl.NewEntity(etl.KindBookstore, StoreKey(p.Name, p.City))
	store.Set("name", p.Name, r.SourceID)
	store.Set("address", p.Address, r.SourceID)
	store.Set("city", p.City, r.SourceID)
	store.Set("country", p.Country, r.SourceID)
	store.Set("avg_price", p.AvgPrice, r.SourceID)
	store.Set("currency", p.Currency, r.SourceID)
	store.Set("contact_email", p.ContactEmail, r.SourceID)
	store.Set("owner_name", p.OwnerName, r.SourceID)
	store.Set("phone", p.Phone, r.SourceID)
	batch.Entities = append(batch.Entities, store)
	return nil
}
