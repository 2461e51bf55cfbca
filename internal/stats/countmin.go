package stats

import (
	"bytes"
	"math/bits"
	"math/rand"
	"slices"
)

const (
	defaultWidth     = 4096
	defaultDepth     = 3
	defaultThreshold = 1
	fingerprintSize  = 16
)

type bucket struct {
	fp [fingerprintSize]byte
	c  uint32
}

// heavyRecord is a key the sketch believes is frequent.
type heavyRecord struct {
	key   []byte
	count uint32
}

// countMin is a Count-Min sketch with majority-vote buckets. Each bucket
// holds a fingerprint and a counter; a colliding key decrements the counter
// and takes the bucket over once it reaches zero. Keys are truncated to
// fingerprintSize bytes. It is not safe for concurrent use.
type countMin struct {
	w, d, threshold uint32
	seed            []uint32
	table           [][]bucket
}

func newCountMin(width, depth, threshold uint32) *countMin {
	if width == 0 {
		width = defaultWidth
	}
	if depth == 0 {
		depth = defaultDepth
	}
	if threshold == 0 {
		threshold = defaultThreshold
	}

	seed := make([]uint32, depth)
	for i := range seed {
		seed[i] = rand.Uint32()
	}
	table := make([][]bucket, depth)
	for i := range table {
		table[i] = make([]bucket, width)
	}

	return &countMin{
		w:         width,
		d:         depth,
		threshold: threshold,
		seed:      seed,
		table:     table,
	}
}

func fingerprint(key []byte) (fp [fingerprintSize]byte) {
	copy(fp[:], key)
	return fp
}

func (t *countMin) insert(key []byte) {
	fp := fingerprint(key)
	for i := 0; i < int(t.d); i++ {
		b := &t.table[i][murmurHash3(fp[:], t.seed[i])%t.w]
		switch {
		case b.c == 0:
			b.fp, b.c = fp, 1
		case b.fp == fp:
			b.c++
		default:
			b.c--
			if b.c == 0 {
				b.fp, b.c = fp, 1
			}
		}
	}
}

func (t *countMin) query(key []byte) uint32 {
	fp := fingerprint(key)
	var n uint32
	for i := 0; i < int(t.d); i++ {
		b := t.table[i][murmurHash3(fp[:], t.seed[i])%t.w]
		if b.fp == fp {
			n = max(n, b.c)
		}
	}
	return n
}

// heavyHitters returns every key at or above the threshold, largest first.
func (t *countMin) heavyHitters() []heavyRecord {
	hh := make(map[[fingerprintSize]byte]uint32)
	for i := 0; i < int(t.d); i++ {
		for _, b := range t.table[i] {
			if b.c > 0 {
				hh[b.fp] = max(hh[b.fp], b.c)
			}
		}
	}

	out := make([]heavyRecord, 0, len(hh))
	for fp, c := range hh {
		if c < t.threshold {
			continue
		}
		out = append(out, heavyRecord{key: bytes.Clone(fp[:]), count: c})
	}
	slices.SortFunc(out, func(a, b heavyRecord) int {
		if a.count != b.count {
			return int(b.count) - int(a.count)
		}
		return bytes.Compare(a.key, b.key)
	})
	return out
}

const (
	c1_32 uint32 = 0xcc9e2d51
	c2_32 uint32 = 0x1b873593
)

// murmurHash3 is the 32-bit MurmurHash3 (x86_32) of data.
func murmurHash3(data []byte, seed uint32) uint32 {
	h1 := seed
	clen := uint32(len(data))
	for len(data) >= 4 {
		k1 := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		data = data[4:]

		k1 *= c1_32
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2_32

		h1 ^= k1
		h1 = bits.RotateLeft32(h1, 13)
		h1 = h1*5 + 0xe6546b64
	}
	var k1 uint32
	switch len(data) {
	case 3:
		k1 ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(data[0])
		k1 *= c1_32
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2_32
		h1 ^= k1
	}

	h1 ^= clen
	h1 ^= h1 >> 16
	h1 *= 0x85ebca6b
	h1 ^= h1 >> 13
	h1 *= 0xc2b2ae35
	h1 ^= h1 >> 16
	return h1
}
