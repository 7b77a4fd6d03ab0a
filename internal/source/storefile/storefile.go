// Package storefile reads the partner bookstore spreadsheet export, a
// single tabular file with a fixed ten column schema.
package storefile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/source"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("source/storefile")

const SourceID = "file-bookstores"

var columns = []string{
	"store_id", "name", "address", "city", "country",
	"currency", "avg_price", "contact_email", "owner_name", "phone",
}

type StoreRow struct {
	StoreID      string `json:"store_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Address      string `json:"address" validate:"required"`
	City         string `json:"city" validate:"required"`
	Country      string `json:"country" validate:"required"`
	Currency     string `json:"currency" validate:"required,len=3"`
	AvgPrice     string `json:"avg_price" validate:"required,numeric"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
	OwnerName    string `json:"owner_name"`
	Phone        string `json:"phone"`
}

type Adapter struct {
	path     string
	validate *validator.Validate
}

func New(path string) *Adapter {
	return &Adapter{
		path:     path,
		validate: validator.New(),
	}
}

func (a *Adapter) ID() string {
	return SourceID
}

// Extract reads the whole file in one page, rows failing validation go
// to the rejects sink with their reason and do not abort the batch.
func (a *Adapter) Extract(ctx context.Context, cursor source.Cursor) (source.Page, error) {
	ctx, span := tracer.Start(ctx, "adapter:Extract")
	defer span.End()
	span.SetAttributes(attribute.String("path", a.path))

	if cursor != "" {
		return source.Page{}, nil
	}

	f, err := os.Open(a.path)
	if err != nil {
		return source.Page{}, etl.ConfigurationError{
			Reason: fmt.Sprintf("bookstore file %q: %s", a.path, err),
		}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return source.Page{}, etl.ConfigurationError{
			Reason: fmt.Sprintf("bookstore file %q: cannot read header: %s", a.path, err),
		}
	}
	index, err := mapHeader(header)
	if err != nil {
		return source.Page{}, err
	}

	var page source.Page
	fetchedAt := time.Now()

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return source.Page{}, fmt.Errorf("read %q: %w", a.path, err)
		}

		row := rowFromRecord(record, index)
		payload, merr := json.Marshal(row)
		if merr != nil {
			return source.Page{}, merr
		}

		verr := a.validate.Struct(row)
		if verr != nil {
			page.Rejects = append(page.Rejects, etl.Reject{
				SourceID:   SourceID,
				NaturalKey: "store:" + row.StoreID,
				Stage:      "extract",
				Reason:     validationReason(verr),
				Payload:    payload,
			})
			continue
		}

		page.Records = append(page.Records, etl.RawRecord{
			SourceID:     SourceID,
			NaturalKey:   "store:" + row.StoreID,
			Payload:      payload,
			FetchedAt:    fetchedAt,
			AttemptCount: 1,
		})
	}

	return page, nil
}

// an unmapped column is a configuration problem, not a data problem
func mapHeader(header []string) (map[string]int, error) {
	index := map[string]int{}
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range columns {
		_, ok := index[required]
		if !ok {
			return nil, etl.ConfigurationError{
				Reason: fmt.Sprintf("bookstore file missing column %q", required),
			}
		}
	}
	return index, nil
}

func rowFromRecord(record []string, index map[string]int) StoreRow {
	get := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	return StoreRow{
		StoreID:      get("store_id"),
		Name:         get("name"),
		Address:      get("address"),
		City:         get("city"),
		Country:      get("country"),
		Currency:     strings.ToUpper(get("currency")),
		AvgPrice:     get("avg_price"),
		ContactEmail: get("contact_email"),
		OwnerName:    get("owner_name"),
		Phone:        get("phone"),
	}
}

func validationReason(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err.Error()
	}
	first := fields[0]
	column := snakeCase(first.StructField())
	if first.Tag() == "required" {
		return "missing_required_field: " + column
	}
	return fmt.Sprintf("invalid_field (%s): %s", first.Tag(), column)
}

func snakeCase(field string) string {
	var out strings.Builder
	prevUpper := false
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !prevUpper {
				out.WriteByte('_')
			}
			out.WriteRune(r - 'A' + 'a')
			prevUpper = true
		} else {
			out.WriteRune(r)
			prevUpper = false
		}
	}
	return out.String()
}
