package model

import "time"

// ResultsExport is the top-level JSON structure for a user's results export.
type ResultsExport struct {
	Username    string         `json:"username"`
	GeneratedAt time.Time      `json:"generated_at"`
	Count       int            `json:"count"`
	Results     []ResultRecord `json:"results"`
}
