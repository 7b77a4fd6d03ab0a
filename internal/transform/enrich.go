package transform

import (
	"context"
	"strings"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/geocode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Enrich attaches coordinates and a normalized locality to entities
// that carry a structured address. A not-found geocode is a normal
// "unresolved" outcome, the record continues through the pipeline.
type Enrich struct {
	Geocoder geocode.Geocoder
}

func (Enrich) Name() string { return "enrich" }

func (s Enrich) Apply(ctx context.Context, b Batch) (Batch, []etl.Reject, error) {
	ctx, span := tracer.Start(ctx, "stage:Enrich")
	defer span.End()

	var out Batch
	out.Relations = b.Relations
	var rejects []etl.Reject

	for _, e := range b.Entities {
		address := e.Str("address")
		if address == "" || s.Geocoder == nil {
			out.Entities = append(out.Entities, e)
			continue
		}

		query := address
		if city := e.Str("city"); city != "" && !strings.Contains(address, city) {
			query = address + " " + city
		}

		result, found, err := s.Geocoder.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return Batch{}, nil, ctx.Err()
			}
			// the geocoder already retried with backoff, this
			// record is lost for the attempt but not the batch
			rejects = append(rejects, etl.Reject{
				SourceID:   e.Source("address"),
				NaturalKey: e.DedupKey,
				Stage:      "enrich",
				Reason:     "geocode_failed: " + err.Error(),
			})
			continue
		}

		if !found {
			e.Enrichment = etl.EnrichmentUnresolved
			span.AddEvent("unresolved", trace.WithAttributes(
				attribute.String("query", query),
			))
			out.Entities = append(out.Entities, e)
			continue
		}

		source := e.Source("address")
		e.Set("latitude", result.Latitude, source)
		e.Set("longitude", result.Longitude, source)
		e.Set("locality", result.Locality, source)
		e.Enrichment = etl.EnrichmentResolved
		out.Entities = append(out.Entities, e)
	}

	return out, rejects, nil
}
