package registry

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/fundmanager/internal/protocol"
)

// MaxPositions bounds the number of named positions.
const MaxPositions = 50

var (
	ErrPositionNotFound     = errors.New("position not found")
	ErrRegistryFull         = errors.New("position registry is full")
	ErrNoPositions          = errors.New("no positions registered")
	ErrPercentageOutOfRange = errors.New("percentage out of the 0-100 range")
	ErrInvalidPosition      = errors.New("invalid position")
	ErrNothingToWithdraw    = errors.New("no position holds any value")
)

// Position is one named external deployment of fund assets.
type Position struct {
	Name              string
	Value             sdkmath.LegacyDec // Cached USD value
	DesiredPercentage uint8
	Adapter           protocol.DefiProtocol
	Coin              string
	ProtocolToken     string
	OtherCoin         string // Empty for single-coin positions
	NeededPriceProof  string // Denom of the signed price the adapter needs, if any
}

// HasOtherCoin reports whether the position manages two coins.
func (p *Position) HasOtherCoin() bool {
	return p.OtherCoin != ""
}

// Validate checks the static fields of a position.
func (p *Position) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidPosition)
	case p.Adapter == nil:
		return fmt.Errorf("%w: %s has no adapter", ErrInvalidPosition, p.Name)
	case p.Coin == "" || p.ProtocolToken == "":
		return fmt.Errorf("%w: %s needs a coin and a protocol token", ErrInvalidPosition, p.Name)
	case p.OtherCoin == p.Coin:
		return fmt.Errorf("%w: %s manages %s twice", ErrInvalidPosition, p.Name, p.Coin)
	case p.DesiredPercentage > 100:
		return fmt.Errorf("%w: %s desired %d", ErrPercentageOutOfRange, p.Name, p.DesiredPercentage)
	}
	return nil
}

// Registry keeps positions in insertion order with a name index.
type Registry struct {
	entries []*Position
	index   map[string]int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

func (r *Registry) Len() int { return len(r.entries) }

// Has reports whether a position called name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Get returns the live position called name.
func (r *Registry) Get(name string) (*Position, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, name)
	}
	return r.entries[i], nil
}

// Upsert stores p. A new name is appended at the end; an existing name keeps its slot
// and the previous entry is returned.
func (r *Registry) Upsert(p Position) (*Position, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Value.IsNil() {
		p.Value = sdkmath.LegacyZeroDec()
	}

	if i, ok := r.index[p.Name]; ok {
		old := r.entries[i]
		r.entries[i] = &p
		return old, nil
	}
	if len(r.entries) >= MaxPositions {
		return nil, ErrRegistryFull
	}
	r.index[p.Name] = len(r.entries)
	r.entries = append(r.entries, &p)
	return nil, nil
}

// Remove deletes the position called name and returns it.
func (r *Registry) Remove(name string) (*Position, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, name)
	}
	removed := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.index, name)
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].Name] = j
	}
	return removed, nil
}

// All returns the live positions in order.
func (r *Registry) All() []*Position {
	out := make([]*Position, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the position names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, p := range r.entries {
		names[i] = p.Name
	}
	return names
}

// TotalValue sums the cached values.
func (r *Registry) TotalValue() sdkmath.LegacyDec {
	total := sdkmath.LegacyZeroDec()
	for _, p := range r.entries {
		total = total.Add(p.Value)
	}
	return total
}

// SetDesiredPercentages updates target weights. Every entry is validated before any is
// applied.
func (r *Registry) SetDesiredPercentages(weights map[string]uint8) error {
	for name, pct := range weights {
		if pct > 100 {
			return fmt.Errorf("%w: %s desired %d", ErrPercentageOutOfRange, name, pct)
		}
		if !r.Has(name) {
			return fmt.Errorf("%w: %s", ErrPositionNotFound, name)
		}
	}
	for name, pct := range weights {
		r.entries[r.index[name]].DesiredPercentage = pct
	}
	return nil
}

// Clone deep-copies the registry. Adapters are shared.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		entries: make([]*Position, len(r.entries)),
		index:   make(map[string]int, len(r.index)),
	}
	for i, p := range r.entries {
		cp := *p
		c.entries[i] = &cp
		c.index[cp.Name] = i
	}
	return c
}
