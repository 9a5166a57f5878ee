// Package organism defines the catalog of organism kinds and their biochemical rates.
package organism

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pthm-cable/ecochamber/config"
)

// ErrUnknownKind is returned when a kind name is not in the catalog.
var ErrUnknownKind = errors.New("organism: unknown kind")

// ErrInvalidCatalog is returned by NewCatalog for malformed definitions.
var ErrInvalidCatalog = errors.New("organism: invalid catalog")

// Kind indexes a catalog entry. Kinds are assigned in catalog order.
type Kind uint8

// Properties holds the immutable description of one organism kind.
type Properties struct {
	Name               string
	Label              string
	PhotosynthesisRate float64 // CO2->O2 per individual per tick; 0 for non-photosynthesizers
	RespirationRate    float64 // O2->CO2 per individual per tick
	AutoFed            bool    // food reserve is not drained per tick

	CountVar   string // script variable for the population count
	FoodVar    string // script variable for the food reserve
	CountField string // record column for the population count
	FoodField  string // record column for the food reserve
}

// Photosynthesizes reports whether the kind converts CO2 to O2.
func (p Properties) Photosynthesizes() bool {
	return p.PhotosynthesisRate > 0
}

// Catalog is a fixed, ordered set of organism kinds.
type Catalog struct {
	kinds []Properties
	index map[string]Kind
}

// NewCatalog builds a catalog. The slice order becomes Kind numbering and
// the default per-tick iteration order.
func NewCatalog(props []Properties) (*Catalog, error) {
	if len(props) == 0 {
		return nil, fmt.Errorf("%w: no kinds", ErrInvalidCatalog)
	}
	if len(props) > math.MaxUint8+1 {
		return nil, fmt.Errorf("%w: %d kinds exceeds %d", ErrInvalidCatalog, len(props), math.MaxUint8+1)
	}

	c := &Catalog{
		kinds: make([]Properties, len(props)),
		index: make(map[string]Kind, len(props)),
	}
	vars := make(map[string]string)
	for i, p := range props {
		key := strings.ToUpper(strings.TrimSpace(p.Name))
		if key == "" {
			return nil, fmt.Errorf("%w: kind %d has no name", ErrInvalidCatalog, i)
		}
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("%w: duplicate kind %q", ErrInvalidCatalog, key)
		}
		if p.PhotosynthesisRate < 0 || p.RespirationRate < 0 {
			return nil, fmt.Errorf("%w: kind %q has a negative rate", ErrInvalidCatalog, key)
		}
		p.Name = key
		if p.Label == "" {
			p.Label = key
		}
		if p.CountVar == "" {
			p.CountVar = strings.ToLower(key) + "Number"
		}
		if p.FoodVar == "" {
			p.FoodVar = strings.ToLower(key) + "Food"
		}
		if p.CountField == "" {
			p.CountField = "num_" + strings.ToLower(key)
		}
		if p.FoodField == "" {
			p.FoodField = strings.ToLower(key) + "_food"
		}
		for _, v := range []string{p.CountVar, p.FoodVar} {
			if owner, taken := vars[v]; taken {
				return nil, fmt.Errorf("%w: variable %q used by %s and %s", ErrInvalidCatalog, v, owner, key)
			}
			vars[v] = key
		}
		c.kinds[i] = p
		c.index[key] = Kind(i)
	}
	return c, nil
}

// FromConfig builds a catalog from the organisms section of the configuration.
func FromConfig(orgs []config.OrganismConfig) (*Catalog, error) {
	props := make([]Properties, len(orgs))
	for i, o := range orgs {
		props[i] = Properties{
			Name:               o.Name,
			Label:              o.Label,
			PhotosynthesisRate: o.PhotosynthesisRate,
			RespirationRate:    o.RespirationRate,
			AutoFed:            o.AutoFed,
			CountVar:           o.CountVar,
			FoodVar:            o.FoodVar,
			CountField:         o.CountField,
			FoodField:          o.FoodField,
		}
	}
	return NewCatalog(props)
}

// Default returns the catalog from the embedded configuration defaults.
func Default() *Catalog {
	c, err := FromConfig(config.Default().Organisms)
	if err != nil {
		panic(fmt.Sprintf("organism: default catalog: %v", err))
	}
	return c
}

// PropertiesOf returns the properties of k. Panics on an out-of-range kind.
func (c *Catalog) PropertiesOf(k Kind) Properties {
	return c.kinds[k]
}

// Lookup resolves a kind by name, case-insensitively.
func (c *Catalog) Lookup(name string) (Kind, error) {
	k, ok := c.index[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// MustLookup is like Lookup but panics on an unknown name.
func (c *Catalog) MustLookup(name string) Kind {
	k, err := c.Lookup(name)
	if err != nil {
		panic(err)
	}
	return k
}

// Len returns the number of kinds.
func (c *Catalog) Len() int {
	return len(c.kinds)
}

// Kinds returns every kind in iteration order.
func (c *Catalog) Kinds() []Kind {
	ks := make([]Kind, len(c.kinds))
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}
