package transform

import (
	"context"
	"math"

	"inkwell-pipeline/internal/etl"
)

// ConvertCurrency converts every monetary field into the single target
// currency using the supplied rate table. A record whose source
// currency has no rate is rejected, the batch continues.
type ConvertCurrency struct {
	Target string
	Rates  map[string]float64
}

func (ConvertCurrency) Name() string { return "convert_currency" }

func (s ConvertCurrency) Apply(ctx context.Context, b Batch) (Batch, []etl.Reject, error) {
	var out Batch
	out.Relations = b.Relations
	var rejects []etl.Reject

	for _, e := range b.Entities {
		currency := e.Str("currency")
		if currency == "" || currency == s.Target {
			out.Entities = append(out.Entities, e)
			continue
		}

		rate, ok := s.Rates[currency]
		if !ok {
			rejects = append(rejects, etl.Reject{
				SourceID:   e.Source("currency"),
				NaturalKey: e.DedupKey,
				Stage:      "convert_currency",
				Reason:     "missing_rate: " + currency,
			})
			continue
		}

		for _, field := range moneyFields {
			amount, isNumber := e.Float(field)
			if !isNumber {
				continue
			}
			e.Set(field, round2(amount*rate), e.Source(field))
		}
		e.Set("currency", s.Target, e.Source("currency"))
		out.Entities = append(out.Entities, e)
	}

	return out, rejects, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
