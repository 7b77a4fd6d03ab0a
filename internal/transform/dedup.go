package transform

import (
	"context"
	"sort"
	"strings"

	"inkwell-pipeline/internal/etl"

	"github.com/antzucaro/matchr"
)

// Dedup collapses records sharing a dedup key into one canonical
// entity. Within a key, the later-arriving record's non-null fields
// win per field (unless the field is configured first_wins), and each
// surviving field keeps the source that contributed it.
type Dedup struct {
	// "<kind>.<field>" -> "first_wins"
	FieldPolicy map[string]string
	// 0 disables the fuzzy cross-source merge pass
	FuzzyThreshold float64
}

func (Dedup) Name() string { return "dedup" }

func (s Dedup) Apply(ctx context.Context, b Batch) (Batch, []etl.Reject, error) {
	merged := map[string]*etl.Entity{}
	var order []string

	for _, e := range b.Entities {
		existing, seen := merged[e.DedupKey]
		if !seen {
			clone := cloneEntity(e)
			merged[e.DedupKey] = &clone
			order = append(order, e.DedupKey)
			continue
		}
		s.mergeInto(existing, e)
	}

	alias := map[string]string{}
	if s.FuzzyThreshold > 0 {
		alias = s.fuzzyMerge(merged, order)
	}

	var out Batch
	for _, key := range order {
		if _, mergedAway := alias[key]; mergedAway {
			continue
		}
		out.Entities = append(out.Entities, *merged[key])
	}

	seenRelations := map[etl.Relation]bool{}
	for _, r := range b.Relations {
		if canonical, ok := alias[r.LeftKey]; ok {
			r.LeftKey = canonical
		}
		if canonical, ok := alias[r.RightKey]; ok {
			r.RightKey = canonical
		}
		if seenRelations[r] {
			continue
		}
		seenRelations[r] = true
		out.Relations = append(out.Relations, r)
	}

	return out, nil, nil
}

func cloneEntity(e etl.Entity) etl.Entity {
	clone := etl.NewEntity(e.Kind, e.DedupKey)
	clone.Enrichment = e.Enrichment
	for name, f := range e.Fields {
		clone.Fields[name] = f
	}
	return clone
}

func (s Dedup) mergeInto(dst *etl.Entity, src etl.Entity) {
	for name, f := range src.Fields {
		if isEmpty(f.Value) {
			continue
		}
		_, present := dst.Fields[name]
		if present && s.FieldPolicy[string(dst.Kind)+"."+name] == policyFirstWins {
			continue
		}
		dst.Fields[name] = f
	}
	if dst.Enrichment == etl.EnrichmentNone {
		dst.Enrichment = src.Enrichment
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, isString := v.(string)
	return isString && s == ""
}

// fuzzyMerge collapses near-identical dedup keys of the same kind, the
// lexicographically first key is canonical and its fields win so the
// outcome does not depend on arrival order. Returns merged -> canonical.
func (s Dedup) fuzzyMerge(merged map[string]*etl.Entity, order []string) map[string]string {
	byKind := map[etl.Kind][]string{}
	for _, key := range order {
		e := merged[key]
		byKind[e.Kind] = append(byKind[e.Kind], key)
	}

	alias := map[string]string{}
	for _, keys := range byKind {
		sort.Strings(keys)
		for i := 0; i < len(keys); i++ {
			if _, gone := alias[keys[i]]; gone {
				continue
			}
			for j := i + 1; j < len(keys); j++ {
				if _, gone := alias[keys[j]]; gone {
					continue
				}
				if matchr.JaroWinkler(naturalName(keys[i]), naturalName(keys[j]), false) < s.FuzzyThreshold {
					continue
				}
				canonical := merged[keys[i]]
				duplicate := merged[keys[j]]
				for name, f := range duplicate.Fields {
					_, present := canonical.Fields[name]
					if !present && !isEmpty(f.Value) {
						canonical.Fields[name] = f
					}
				}
				if canonical.Enrichment == etl.EnrichmentNone {
					canonical.Enrichment = duplicate.Enrichment
				}
				alias[keys[j]] = keys[i]
			}
		}
	}
	return alias
}

// the part of the dedup key after the kind prefix
func naturalName(key string) string {
	_, name, found := strings.Cut(key, ":")
	if !found {
		return key
	}
	return name
}
