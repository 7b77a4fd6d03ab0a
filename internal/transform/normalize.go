package transform

import (
	"context"
	"strconv"
	"strings"
	"time"

	"inkwell-pipeline/internal/etl"
)

// Normalize unifies date formats, trims text and coerces numeric
// fields so every later stage sees one representation.
type Normalize struct{}

func (Normalize) Name() string { return "normalize" }

// input layouts seen across the sources
var dateLayouts = []string{
	"January 2, 2006",
	"January 02, 2006",
	"2006-01-02",
	"02/01/2006",
}

// fields holding a money amount as scraped text
var moneyFields = []string{"price", "avg_price"}

func (Normalize) Apply(ctx context.Context, b Batch) (Batch, []etl.Reject, error) {
	var out Batch
	out.Relations = b.Relations
	var rejects []etl.Reject

	for _, e := range b.Entities {
		ok := true
		for name, f := range e.Fields {
			s, isString := f.Value.(string)
			if !isString {
				continue
			}
			e.Set(name, strings.TrimSpace(s), f.Source)
		}

		for _, field := range moneyFields {
			raw, isString := e.Fields[field].Value.(string)
			if !isString {
				continue
			}
			amount, err := parseAmount(raw)
			if err != nil {
				rejects = append(rejects, etl.Reject{
					SourceID:   e.Source(field),
					NaturalKey: e.DedupKey,
					Stage:      "normalize",
					Reason:     "unparsable_amount: " + raw,
				})
				ok = false
				break
			}
			e.Set(field, amount, e.Source(field))
		}
		if !ok {
			continue
		}

		if date := e.Str("born_date"); date != "" {
			e.Set("born_date", normalizeDate(date), e.Source("born_date"))
		}
		if cur := e.Str("currency"); cur != "" {
			e.Set("currency", strings.ToUpper(cur), e.Source("currency"))
		}

		out.Entities = append(out.Entities, e)
	}

	return out, rejects, nil
}

// parseAmount accepts both "10.99" and locale forms like "1.234,56"
func parseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

// normalizeDate coerces known layouts to ISO-8601, unknown layouts are
// passed through untouched rather than guessed at
func normalizeDate(date string) string {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, date)
		if err == nil {
			return t.Format("2006-01-02")
		}
	}
	return date
}
