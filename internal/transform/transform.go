// Package transform turns staged raw records into canonical entities
// and relations through a pipeline of named, order-sensitive stages.
// Every stage is pure: sequence in, sequence out plus rejects.
package transform

import (
	"context"
	"fmt"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/geocode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("transform")

// Batch is what flows between stages.
type Batch struct {
	Entities  []etl.Entity
	Relations []etl.Relation
}

type Stage interface {
	Name() string
	Apply(ctx context.Context, b Batch) (Batch, []etl.Reject, error)
}

type Config struct {
	TargetCurrency string             `json:"target_currency"`
	Rates          map[string]float64 `json:"rates"`
	// records whose price is beyond this many standard deviations
	// from the batch mean are rejected
	OutlierStdDevs float64 `json:"outlier_std_devs"`
	// confidential column -> "drop" | "hash"
	Confidential  map[string]string `json:"confidential"`
	PseudonymSalt string            `json:"pseudonym_salt"`
	// "<kind>.<field>" -> "first_wins", everything else is
	// last-write-wins at field granularity
	FieldPolicy map[string]string `json:"field_policy"`
	// minimum Jaro-Winkler similarity to merge near-identical
	// dedup keys across sources, 0 disables fuzzy merging
	FuzzyMergeThreshold float64 `json:"fuzzy_merge_threshold"`
}

type Engine struct {
	stages []Stage
}

func NewEngine(cfg Config, geocoder geocode.Geocoder) (*Engine, error) {
	if cfg.TargetCurrency == "" {
		return nil, etl.ConfigurationError{Reason: "target_currency is not set"}
	}
	if cfg.OutlierStdDevs == 0 {
		cfg.OutlierStdDevs = 3
	}
	for column, policy := range cfg.Confidential {
		if policy != policyDrop && policy != policyHash {
			return nil, etl.ConfigurationError{
				Reason: fmt.Sprintf("confidential column %q has unknown policy %q", column, policy),
			}
		}
		if policy == policyHash && cfg.PseudonymSalt == "" {
			return nil, etl.ConfigurationError{
				Reason: fmt.Sprintf("confidential column %q wants hashing but pseudonym_salt is not set", column),
			}
		}
	}
	for field, policy := range cfg.FieldPolicy {
		if policy != policyFirstWins && policy != policyLastWins {
			return nil, etl.ConfigurationError{
				Reason: fmt.Sprintf("field %q has unknown conflict policy %q", field, policy),
			}
		}
	}

	return &Engine{
		stages: []Stage{
			Normalize{},
			ConvertCurrency{Target: cfg.TargetCurrency, Rates: cfg.Rates},
			Pseudonymize{Columns: cfg.Confidential, Salt: cfg.PseudonymSalt},
			Enrich{Geocoder: geocoder},
			FilterOutliers{StdDevs: cfg.OutlierStdDevs},
			Dedup{FieldPolicy: cfg.FieldPolicy, FuzzyThreshold: cfg.FuzzyMergeThreshold},
		},
	}, nil
}

// Run maps raw records onto canonical entities and chains the stages
// left to right. Record-level problems go to the rejects slice, only
// configuration problems abort the batch.
func (e *Engine) Run(ctx context.Context, records []etl.RawRecord) (Batch, []etl.Reject, error) {
	ctx, span := tracer.Start(ctx, "engine:Run")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	batch, rejects, err := MapRecords(records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Batch{}, nil, err
	}

	for _, stage := range e.stages {
		var stageRejects []etl.Reject
		batch, stageRejects, err = stage.Apply(ctx, batch)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("stage %s: %s", stage.Name(), err))
			return Batch{}, nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		rejects = append(rejects, stageRejects...)
	}

	span.SetAttributes(
		attribute.Int("entities", len(batch.Entities)),
		attribute.Int("relations", len(batch.Relations)),
		attribute.Int("rejects", len(rejects)),
	)
	return batch, rejects, nil
}

const (
	policyDrop      = "drop"
	policyHash      = "hash"
	policyFirstWins = "first_wins"
	policyLastWins  = "last_wins"
)
