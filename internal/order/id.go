package order

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	idPrefix = "GM"
	// 36^6: every suffix fits in six base36 digits.
	suffixSpace int64 = 2176782336
)

// IDGenerator issues ids of the form GM-<base36 millis>-<base36 suffix>.
// Within one millisecond the suffix walks forward from a random start, so a
// single generator never repeats an id. Ids from different processes can
// still collide; the primary key catches that and creation retries.
type IDGenerator struct {
	mu     sync.Mutex
	now    func() time.Time
	randN  func(n int64) int64
	lastMS int64
	start  int64
	seq    int64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now, randN: rand.Int64N}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	switch {
	case ms > g.lastMS:
		g.lastMS = ms
		g.start = g.randN(suffixSpace)
		g.seq = 0
	default:
		// same millisecond, or the clock moved backwards
		g.seq++
		if g.seq >= suffixSpace {
			g.lastMS++
			g.start = g.randN(suffixSpace)
			g.seq = 0
		}
	}
	suffix := (g.start + g.seq) % suffixSpace

	var b strings.Builder
	b.Grow(24)
	b.WriteString(idPrefix)
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(strconv.FormatInt(g.lastMS, 36)))
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(strconv.FormatInt(suffix, 36)))
	return b.String()
}
