// Package pairing stores pairing requests issued to unrecognized
// direct-message senders, and the per-channel allow-list derived from
// approved requests.
package pairing

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Request is one pairing request. A request stays pending until the bot
// owner approves it; re-issuing for the same (channel, sender) pair is
// suppressed while a request is pending.
type Request struct {
	Channel   string
	SenderID  string
	Code      string
	Approved  bool
	Meta      map[string]string
	CreatedAt time.Time
}

// Store is the pairing persistence boundary.
type Store interface {
	// Upsert returns the pairing code for (channel, senderID), creating a
	// request when none exists. created is true only on creation; the
	// caller sends the one-time pairing notice exactly when it is.
	Upsert(ctx context.Context, channel, senderID string, meta map[string]string) (code string, created bool, err error)

	// ReadAllow returns the sender ids approved for the channel.
	ReadAllow(ctx context.Context, channel string) ([]string, error)

	// Approve marks the request with the given code approved and returns
	// the sender id it belongs to.
	Approve(ctx context.Context, channel, code string) (senderID string, err error)
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewCode returns an 8-char pairing code. The alphabet omits the usual
// lookalikes (0/O, 1/I) since owners retype these by hand.
func NewCode() string {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, 8)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = codeAlphabet[0]
			continue
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}
