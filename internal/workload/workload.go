// Package workload generates the randomized traffic a bot session sends:
// usernames, channel names, message bodies, channel picks and pacing delays.
package workload

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	UsernamePrefix    = "bot-"
	UsernameSuffixLen = 6
	ChannelPrefix     = "chan-"
	ChannelSuffixLen  = 5

	// TimestampLayout matches the broker's HH:MM:SS time strings.
	TimestampLayout = "15:04:05"
)

var ErrNoChannels = errors.New("workload: no channels to choose from")

// Source is a uniform integer source. IntN returns a value in [0, n).
type Source interface {
	IntN(n int) int
}

// NewSource returns a seeded math/rand/v2 source. A zero seed draws a
// random one.
func NewSource(seed uint64) Source {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generator produces workload values from an injected Source.
type Generator struct {
	src Source
	loc *time.Location
	now func() time.Time
}

type Option func(*Generator)

// WithLocation renders timestamps in loc.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithNow replaces the wall clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGenerator(src Source, opts ...Option) *Generator {
	if src == nil {
		src = NewSource(0)
	}
	g := &Generator{
		src: src,
		loc: time.Local,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) RandomUsername() string {
	return UsernamePrefix + g.randomString(UsernameSuffixLen)
}

func (g *Generator) RandomChannelName() string {
	return ChannelPrefix + g.randomString(ChannelSuffixLen)
}

// RandomMessageBody returns exactly length characters from Alphabet.
func (g *Generator) RandomMessageBody(length int) string {
	return g.randomString(length)
}

// ChooseChannel picks one element of channels uniformly.
func (g *Generator) ChooseChannel(channels []string) (string, error) {
	if len(channels) == 0 {
		return "", ErrNoChannels
	}
	return channels[g.src.IntN(len(channels))], nil
}

func (g *Generator) CurrentTimestamp() string {
	return g.now().In(g.loc).Format(TimestampLayout)
}

// Delay returns a uniform duration in [lo, hi) at millisecond resolution.
// hi <= lo yields lo.
func (g *Generator) Delay(lo, hi time.Duration) time.Duration {
	if lo < 0 {
		lo = 0
	}
	span := hi - lo
	if span <= 0 {
		return lo
	}
	ms := int(span / time.Millisecond)
	if ms <= 0 {
		return lo
	}
	return lo + time.Duration(g.src.IntN(ms))*time.Millisecond
}

func (g *Generator) randomString(length int) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(Alphabet[g.src.IntN(len(Alphabet))])
	}
	return b.String()
}
