package wire

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a new ULID string (26 chars). ULIDs are lexicographically
// sortable, which keeps generated message ids stable to eyeball in logs.
func NewID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		// Entropy exhaustion is not a recoverable condition for an id;
		// fall back to a zero-entropy timestamp ULID.
		return ulid.MustNew(ulid.Timestamp(now), zeroReader{}).String()
	}
	return id.String()
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
