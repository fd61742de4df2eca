// Package eventlog is the append-only, hash-chained record of raw
// scoring events. Every event binds to its predecessor through a
// SHA-256 chain, so any retroactive edit to payload, author or time
// breaks verification from that sequence number on.
package eventlog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the prior hash of a match's first event: 32 zero bytes.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EventHash computes the chain hash of one event. The input is the
// prior event's hash, the scorer id, the event timestamp as zero-padded
// unix milliseconds, then the canonical payload bytes, in that order.
func EventHash(priorHash, scorerID string, ts time.Time, canonicalPayload []byte) (string, error) {
	prior, err := hex.DecodeString(priorHash)
	if err != nil || len(prior) != sha256.Size {
		return "", fmt.Errorf("prior hash %q is not a sha-256 hex digest", priorHash)
	}
	h := sha256.New()
	h.Write(prior)
	h.Write([]byte(scorerID))
	fmt.Fprintf(h, "%020d", ts.UnixMilli())
	h.Write(canonicalPayload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
