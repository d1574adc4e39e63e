package models

import "time"

// Render job statuses.
const (
	StatusQueued  = "QUEUED"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

type RenderJob struct {
	ID              string     `json:"id"`
	Prompt          string     `json:"prompt"`
	Script          string     `json:"script,omitempty"`
	DurationMinutes float64    `json:"duration_minutes"`
	Mode            string     `json:"mode"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	FPS             int        `json:"fps"`
	FrameCount      int        `json:"frame_count"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	ErrorCode       string     `json:"error_code,omitempty"`
	ErrorText       string     `json:"error_text,omitempty"`
	VideoAssetID    string     `json:"video_asset_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}
