package models

import "time"

// Asset kinds.
const (
	AssetRenderOutput = "render_output"
)

type Asset struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider"`
	ObjectKey string    `json:"object_key"`
	Mime      string    `json:"mime"`
	SizeBytes int64     `json:"size_bytes"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
