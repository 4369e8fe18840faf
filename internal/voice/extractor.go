package voice

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Feature ranges for the hash-derived extractor. Pitch spans typical
// human fundamental frequency; centroid spans speech-band energy.
const (
	pitchFloor    = 80.0
	pitchSpan     = 170.0
	centroidFloor = 500.0
	centroidSpan  = 3000.0
)

// HashExtractor derives stable pseudo-acoustic features from a SHA-256
// digest of the sample. Identical audio always produces identical
// features, which is what the matcher's exact-hash shortcut relies on.
type HashExtractor struct{}

var _ Extractor = (*HashExtractor)(nil)

func (e *HashExtractor) Extract(audio []byte) (*Features, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	digest := sha256.Sum256(audio)
	return &Features{
		Hash:             hex.EncodeToString(digest[:])[:32],
		Pitch:            pitchFloor + scale16(digest[0:2])*pitchSpan,
		Energy:           float64(digest[2]) / 255.0,
		SpectralCentroid: centroidFloor + scale16(digest[3:5])*centroidSpan,
	}, nil
}

// scale16 maps two digest bytes onto [0, 1].
func scale16(b []byte) float64 {
	return float64(binary.BigEndian.Uint16(b)) / 65535.0
}
