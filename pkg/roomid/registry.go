// Package roomid issues memorable room identifiers and keeps track of which
// ones are still referenced by a live session.
package roomid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// randomAttempts bounds the random draws before Issue falls back to a scan.
const randomAttempts = 32

// ExhaustionError is returned when every identifier in the space is taken.
type ExhaustionError struct {
	Space int
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("room id space exhausted: all %d ids are taken", e.Space)
}

// Generator draws an index in [0, n).
type Generator interface {
	Index(n int) (int, error)
}

type cryptoGenerator struct{}

func (cryptoGenerator) Index(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Option configures a Registry.
type Option func(*Registry)

// WithGenerator replaces the crypto/rand index source.
func WithGenerator(g Generator) Option {
	return func(r *Registry) { r.gen = g }
}

// WithSpace limits the registry to the first n identifiers of the space.
func WithSpace(n int) Option {
	return func(r *Registry) {
		if n > 0 && n < Space {
			r.space = n
		}
	}
}

// Registry hands out identifiers that are unique among the unreclaimed ones.
type Registry struct {
	mu    sync.Mutex
	taken map[string]bool
	gen   Generator
	space int
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		taken: make(map[string]bool),
		gen:   cryptoGenerator{},
		space: Space,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue returns an identifier distinct from every currently taken one and
// marks it taken.
func (r *Registry) Issue() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.taken) >= r.space {
		return "", &ExhaustionError{Space: r.space}
	}

	start := 0
	for i := 0; i < randomAttempts; i++ {
		idx, err := r.gen.Index(r.space)
		if err != nil {
			return "", fmt.Errorf("draw room id: %w", err)
		}
		id := Code(idx)
		if !r.taken[id] {
			r.taken[id] = true
			return id, nil
		}
		start = idx
	}

	// Dense registry: walk the space from the last collision.
	for off := 1; off < r.space; off++ {
		id := Code((start + off) % r.space)
		if !r.taken[id] {
			r.taken[id] = true
			log.Debug().Str("module", "roomid").Int("taken", len(r.taken)).Msg("issued room id by scan")
			return id, nil
		}
	}
	return "", &ExhaustionError{Space: r.space}
}

// Reclaim releases id for reuse. Unknown ids are ignored.
func (r *Registry) Reclaim(id string) {
	r.mu.Lock()
	delete(r.taken, Normalize(id))
	r.mu.Unlock()
}

// IsTaken reports whether id is currently issued.
func (r *Registry) IsTaken(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.taken[Normalize(id)]
}

// Len returns the number of taken identifiers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.taken)
}

// Reset releases every identifier except the ones listed in keep.
func (r *Registry) Reset(keep ...string) {
	r.mu.Lock()
	next := make(map[string]bool, len(keep))
	for _, id := range keep {
		if r.taken[id] {
			next[id] = true
		}
	}
	r.taken = next
	r.mu.Unlock()
}

// Code maps an index of the identifier space to its ADJECTIVE-NOUN-NN form.
func Code(idx int) string {
	num := idx % numbers
	noun := (idx / numbers) % len(nouns)
	adj := (idx / (numbers * len(nouns))) % len(adjectives)
	return fmt.Sprintf("%s-%s-%02d", adjectives[adj], nouns[noun], num)
}

// Normalize ensures consistent formatting (uppercase, trimmed)
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks if a room code has valid format
func Validate(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		return false
	}
	return len(parts[0]) > 0 && len(parts[1]) > 0 && len(parts[2]) > 0
}
