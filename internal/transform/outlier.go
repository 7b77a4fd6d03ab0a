package transform

import (
	"context"
	"fmt"
	"math"

	"inkwell-pipeline/internal/etl"
)

// FilterOutliers rejects entities whose monetary fields are
// non-positive or fall beyond the configured number of standard
// deviations from the batch mean for that (kind, field) population.
type FilterOutliers struct {
	StdDevs float64
}

func (FilterOutliers) Name() string { return "filter_outliers" }

func (s FilterOutliers) Apply(ctx context.Context, b Batch) (Batch, []etl.Reject, error) {
	type population struct {
		kind  etl.Kind
		field string
	}
	values := map[population][]float64{}

	for _, e := range b.Entities {
		for _, field := range moneyFields {
			v, isNumber := e.Float(field)
			if isNumber {
				p := population{kind: e.Kind, field: field}
				values[p] = append(values[p], v)
			}
		}
	}

	bounds := map[population][2]float64{}
	for p, vs := range values {
		mean, std := meanStd(vs)
		bounds[p] = [2]float64{mean - s.StdDevs*std, mean + s.StdDevs*std}
	}

	var out Batch
	out.Relations = b.Relations
	var rejects []etl.Reject

	for _, e := range b.Entities {
		reason := ""
		for _, field := range moneyFields {
			v, isNumber := e.Float(field)
			if !isNumber {
				continue
			}
			if v <= 0 {
				reason = fmt.Sprintf("nonpositive_amount (%s): %v", field, v)
				break
			}
			p := population{kind: e.Kind, field: field}
			bound := bounds[p]
			if len(values[p]) > 2 && (v < bound[0] || v > bound[1]) {
				reason = fmt.Sprintf("amount_outlier (%s): %v", field, v)
				break
			}
		}

		if reason != "" {
			rejects = append(rejects, etl.Reject{
				NaturalKey: e.DedupKey,
				Stage:      "filter_outliers",
				Reason:     reason,
			})
			continue
		}
		out.Entities = append(out.Entities, e)
	}

	return out, rejects, nil
}

func meanStd(vs []float64) (mean, std float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	for _, v := range vs {
		mean += v
	}
	mean /= float64(len(vs))

	var variance float64
	for _, v := range vs {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vs))
	return mean, math.Sqrt(variance)
}
