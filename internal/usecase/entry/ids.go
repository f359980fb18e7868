package entry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// UUIDGenerator issues random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Next(context.Context) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}

// SeedFunc returns the highest numeric id already in use, if any.
type SeedFunc func(ctx context.Context) (int64, bool, error)

// SequenceGenerator issues increasing decimal ids. It seeds itself on first
// use so a restarted process continues after the highest stored id.
type SequenceGenerator struct {
	seed SeedFunc

	mu     sync.Mutex
	seeded bool
	last   int64
}

// NewSequenceGenerator creates a generator seeded by seed. A nil seed starts at 1.
func NewSequenceGenerator(seed SeedFunc) *SequenceGenerator {
	return &SequenceGenerator{seed: seed}
}

func (g *SequenceGenerator) Next(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.seeded {
		if g.seed != nil {
			top, ok, err := g.seed(ctx)
			if err != nil {
				return "", fmt.Errorf("seed sequence: %w", err)
			}
			if ok && top > g.last {
				g.last = top
			}
		}
		g.seeded = true
	}
	g.last++
	return strconv.FormatInt(g.last, 10), nil
}

// Advance moves the sequence so the next id is greater than top.
func (g *SequenceGenerator) Advance(top int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if top > g.last {
		g.last = top
	}
}

// numericID parses ids the sequence could have issued.
func numericID(id string) (int64, bool) {
	if id == "" || len(id) > 18 || strings.Trim(id, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

// NewIDGenerator returns the generator for a configured strategy.
func NewIDGenerator(strategy string, seed SeedFunc) (IDGenerator, error) {
	switch strategy {
	case "", "sequence":
		return NewSequenceGenerator(seed), nil
	case "uuid":
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}
