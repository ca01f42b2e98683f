package mqtt

import (
	"math"
	"path/filepath"
	"time"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/audiocore/export"
)

// StatusDTO is published on the status topic whenever the recorder status
// text or pipeline state changes.
//
// Field names are part of the MQTT payload contract used by discovery value
// templates.
type StatusDTO struct {
	Status string `json:"status"` // human readable, e.g. "Microphone is on."
	State  string `json:"state"`  // pipeline state name
	RunID  string `json:"runId,omitempty"`
	Time   string `json:"time"` // RFC 3339
}

// ClipDTO is published on the clip topic for every complete clip.
type ClipDTO struct {
	File          string   `json:"file"`
	Dir           string   `json:"dir"`
	LengthSeconds float64  `json:"lengthSeconds"`
	PeakFreqKHz   *float64 `json:"peakFreqKHz,omitempty"`
	PeakDBFS      *float64 `json:"peakDBFS,omitempty"`
	Time          string   `json:"time"`
}

// NewStatusDTO builds a status payload.
func NewStatusDTO(status string, state audiocore.StreamState, runID string, t time.Time) StatusDTO {
	return StatusDTO{
		Status: status,
		State:  state.String(),
		RunID:  runID,
		Time:   t.Format(time.RFC3339),
	}
}

// NewClipDTO builds a clip payload. outRate is the WAV sample rate.
func NewClipDTO(ev export.ClipEvent, outRate int, t time.Time) ClipDTO {
	dto := ClipDTO{
		File: filepath.Base(ev.Path),
		Dir:  filepath.Dir(ev.Path),
		Time: t.Format(time.RFC3339),
	}
	if outRate > 0 {
		dto.LengthSeconds = float64(ev.Frames) / float64(outRate)
	}
	if ev.Peak != nil {
		khz := math.Round(ev.Peak.FrequencyHz/100) / 10
		db := math.Round(ev.Peak.LevelDBFS*10) / 10
		dto.PeakFreqKHz = &khz
		dto.PeakDBFS = &db
	}
	return dto
}
