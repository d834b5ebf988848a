// Package idgen generates the IDs that name requests and tasks.
package idgen

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// Generator can generate IDs
type Generator interface {
	// Generate an ID
	Generate() string
}

// NewSequential returns a generator whose first emitted ID is "1". IDs from a
// sequential generator are reproducible across runs.
func NewSequential() Generator {
	return &sequentialGenerator{}
}

// NewParallel returns a generator backed by xid. IDs are globally unique but
// not deterministic.
func NewParallel() Generator {
	return parallelGenerator{}
}

var (
	defaultMutex        sync.Mutex
	defaultInstantiated bool
	defaultGenerator    Generator
)

// UseSequential configures the default generator to generate IDs in sequence.
func UseSequential() {
	setDefault(NewSequential())
}

// UseParallel configures the default generator to generate IDs in parallel.
// The IDs generated will not be deterministic anymore.
func UseParallel() {
	setDefault(NewParallel())
}

func setDefault(g Generator) {
	defaultMutex.Lock()
	defer defaultMutex.Unlock()

	if defaultInstantiated {
		log.Panic("cannot change id generator type after using it")
	}

	defaultGenerator = g
	defaultInstantiated = true
}

// Default returns the process-wide generator, creating a sequential one on
// first use.
func Default() Generator {
	defaultMutex.Lock()
	defer defaultMutex.Unlock()

	if !defaultInstantiated {
		defaultGenerator = NewSequential()
		defaultInstantiated = true
	}

	return defaultGenerator
}

type sequentialGenerator struct {
	nextID uint64
}

func (g *sequentialGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(idNumber, 10)
}

type parallelGenerator struct{}

func (parallelGenerator) Generate() string {
	return xid.New().String()
}
