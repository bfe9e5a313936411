package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BlockDef names one block code.
type BlockDef struct {
	Code int    `yaml:"code"`
	Name string `yaml:"name"`
}

// Catalog is the set of block codes clients may place.
// A nil *Catalog allows every non-negative code.
type Catalog struct {
	byCode map[int]BlockDef
}

type catalogFile struct {
	Blocks []BlockDef `yaml:"blocks"`
}

// LoadCatalog reads a block catalog from a YAML file.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a Catalog or an error describing the first invalid entry.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading block catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a block catalog from YAML bytes.
//
// Postcondition: Returns an error for code 0, negative codes, or duplicate codes.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing block catalog: %w", err)
	}
	c := &Catalog{byCode: make(map[int]BlockDef, len(f.Blocks))}
	for _, b := range f.Blocks {
		if b.Code <= Empty {
			return nil, fmt.Errorf("block %q: code must be >= 1, got %d", b.Name, b.Code)
		}
		if _, dup := c.byCode[b.Code]; dup {
			return nil, fmt.Errorf("block %q: duplicate code %d", b.Name, b.Code)
		}
		c.byCode[b.Code] = b
	}
	return c, nil
}

// Allows reports whether code may be placed. Empty is always allowed.
func (c *Catalog) Allows(code int) bool {
	if code < Empty {
		return false
	}
	if c == nil || code == Empty {
		return true
	}
	_, ok := c.byCode[code]
	return ok
}

// Lookup returns the definition for code.
func (c *Catalog) Lookup(code int) (BlockDef, bool) {
	if c == nil {
		return BlockDef{}, false
	}
	b, ok := c.byCode[code]
	return b, ok
}

// Len returns the number of defined blocks.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byCode)
}
