// Package id generates build identifiers.
//
// IDs are prefixed ULIDs ("build_01J..."). ULIDs sort lexicographically by
// creation time, so listing builds in ID order lists them oldest first.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// BuildID identifies a cache build.
type BuildID string

const BuildPrefix = "build"

func (id BuildID) String() string { return string(id) }

// Generator generates monotonic ULIDs
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand. IDs made within
// the same millisecond still increase.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     time.Now,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewBuildID generates a build ID from the shared generator
func NewBuildID() BuildID {
	return BuildID(Default().GenerateWithPrefix(BuildPrefix))
}

// Parse extracts the ULID from a plain or prefixed ID
func Parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// IsValid reports whether id carries a valid ULID
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Timestamp extracts the creation time of an ID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
