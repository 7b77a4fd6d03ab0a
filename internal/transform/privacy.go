package transform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"inkwell-pipeline/internal/etl"
)

// Pseudonymize removes or hashes columns flagged personal/confidential
// before anything reaches the loader. This runs before enrichment so a
// confidential value can never leak into an external geocoding query.
type Pseudonymize struct {
	// column -> "drop" | "hash"
	Columns map[string]string
	Salt    string
}

func (Pseudonymize) Name() string { return "pseudonymize" }

func (s Pseudonymize) Apply(ctx context.Context, b Batch) (Batch, []etl.Reject, error) {
	for _, e := range b.Entities {
		for column, policy := range s.Columns {
			f, present := e.Fields[column]
			if !present {
				continue
			}
			switch policy {
			case policyDrop:
				e.Delete(column)
			case policyHash:
				value, isString := f.Value.(string)
				if !isString || value == "" {
					e.Delete(column)
					continue
				}
				e.Set(column, s.pseudonym(value), f.Source)
			}
		}
	}
	return b, nil, nil
}

func (s Pseudonymize) pseudonym(value string) string {
	mac := hmac.New(sha256.New, []byte(s.Salt))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}
