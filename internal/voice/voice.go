// Package voice maintains voiceprints of known callers and matches
// incoming call audio against them, flagging voices previously reported
// as scammers.
package voice

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a fingerprint id is unknown.
	ErrNotFound = errors.New("voice fingerprint not found")
	// ErrEmptyAudio is returned when no audio bytes were supplied.
	ErrEmptyAudio = errors.New("audio sample is empty")
)

// Default matching thresholds.
const (
	DefaultMatchThreshold   = 0.70
	DefaultScammerThreshold = 0.80
)

// Features are the acoustic characteristics extracted from a sample.
type Features struct {
	Hash             string  `json:"hash"`
	Pitch            float64 `json:"pitch"`
	Energy           float64 `json:"energy"`
	SpectralCentroid float64 `json:"spectralCentroid"`
}

// Extractor turns raw audio into comparable features. The default
// implementation is deterministic; a real DSP pipeline can be plugged
// in without touching the matcher.
type Extractor interface {
	Extract(audio []byte) (*Features, error)
}

// Fingerprint is a stored voiceprint. SampleCount grows each time the
// same voice (same hash) is registered again.
type Fingerprint struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId,omitempty"`
	PhoneNumber      string    `json:"phoneNumber,omitempty"`
	CallerName       string    `json:"callerName,omitempty"`
	Hash             string    `json:"hash"`
	Pitch            float64   `json:"pitch"`
	Energy           float64   `json:"energy"`
	SpectralCentroid float64   `json:"spectralCentroid"`
	IsScammer        bool      `json:"isScammer"`
	SampleCount      int       `json:"sampleCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Match is one candidate fingerprint with its similarity to the probe.
type Match struct {
	Fingerprint *Fingerprint `json:"fingerprint"`
	Similarity  float64      `json:"similarity"`
	Confidence  string       `json:"confidence"` // "high", "medium", "low"
}

// MatchResult is the outcome of matching a probe sample.
type MatchResult struct {
	Matches      []Match `json:"matches"`
	KnownScammer bool    `json:"knownScammer"`
}

// Store persists voiceprints. Upsert is keyed on the feature hash so
// re-registering the same sample is idempotent apart from the counter.
type Store interface {
	Upsert(ctx context.Context, fp *Fingerprint) (*Fingerprint, error)
	GetByID(ctx context.Context, id string) (*Fingerprint, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Fingerprint, error)
	ListScammers(ctx context.Context, limit int) ([]*Fingerprint, error)
	All(ctx context.Context, limit int) ([]*Fingerprint, error)
	SetScammer(ctx context.Context, id string, isScammer bool) error
	Delete(ctx context.Context, id string) error
}
