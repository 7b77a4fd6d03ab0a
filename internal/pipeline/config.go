package pipeline

import (
	"inkwell-pipeline/internal/transform"
)

type ScrapeConfig struct {
	BaseURL string `json:"base_url"`
	// first listing page relative to base_url, "/" when empty
	StartPath string `json:"start_path"`
	// minimum milliseconds between requests to this source
	PolitenessMs int `json:"politeness_ms"`
	MaxRetries   int `json:"max_retries"`
	// safety cap on pagination, 0 means follow next links to the end
	MaxPages int `json:"max_pages"`
}

type GeocoderConfig struct {
	BaseURL string `json:"base_url"`
	// published ceiling of the collaborator
	RequestsPerSecond float64 `json:"requests_per_second"`
	MaxRetries        int     `json:"max_retries"`
}

type Config struct {
	PipelineDB    string           `json:"pipeline_db"`
	WarehouseDB   string           `json:"warehouse_db"`
	Quotes        ScrapeConfig     `json:"quotes"`
	Books         ScrapeConfig     `json:"books"`
	BookstoreFile string           `json:"bookstore_file"`
	Geocoder      GeocoderConfig   `json:"geocoder"`
	Transform     transform.Config `json:"transform"`
	// attempts per stage before it is marked failed
	StageRetries int `json:"stage_retries"`
}
