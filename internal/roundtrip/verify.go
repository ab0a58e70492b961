package roundtrip

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"time"

	"lukechampine.com/blake3"
)

// FillRandom fills buf with bytes in [0, 254] drawn from a source seeded with
// seed.
func FillRandom(buf []byte, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range buf {
		buf[i] = byte(rng.Intn(255))
	}
}

// Diverges reports whether out differs from in.
func Diverges(in, out []byte) bool {
	return !bytes.Equal(in, out)
}

// TimeCPUCopy copies src into dst and returns the wall-clock duration.
func TimeCPUCopy(dst, src []byte) time.Duration {
	start := time.Now()
	copy(dst, src)
	return time.Since(start)
}

// Digest returns the hex BLAKE3-256 digest of b.
func Digest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
