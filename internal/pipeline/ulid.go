package pipeline

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Job ids are ULIDs: 26-character Crockford Base32 strings with a millisecond
// timestamp prefix, so listings sort by creation time.

var (
	ulidMu  sync.Mutex
	lastTS  uint64
	lastSeq uint16
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewJobID generates a fresh ULID.
func NewJobID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	ts := uint64(time.Now().UnixMilli())
	if ts == lastTS {
		lastSeq++
	} else {
		lastTS = ts
		lastSeq = 0
	}

	var b [16]byte
	// 48-bit big-endian timestamp in the first 6 bytes.
	b[0] = byte(ts >> 40)
	b[1] = byte(ts >> 32)
	b[2] = byte(ts >> 24)
	b[3] = byte(ts >> 16)
	b[4] = byte(ts >> 8)
	b[5] = byte(ts)
	rand.Read(b[6:])
	// Sequence in bytes 6-7 keeps ids unique within the same ms.
	binary.BigEndian.PutUint16(b[6:8], lastSeq)

	return encodeBase32(b)
}

// encodeBase32 packs 128 bits into 26 Crockford characters, reading the bytes
// as a big-endian bit stream 5 bits at a time (the first character encodes
// only the top 3 bits).
func encodeBase32(b [16]byte) string {
	var out [26]byte
	idx := 0
	var acc uint
	// Two leading zero bits pad 128 bits to an even 26 groups of 5.
	accBits := uint(2)
	for _, by := range b {
		acc = acc<<8 | uint(by)
		accBits += 8
		for accBits >= 5 {
			accBits -= 5
			out[idx] = crockford[(acc>>accBits)&31]
			idx++
		}
	}
	return string(out[:])
}
