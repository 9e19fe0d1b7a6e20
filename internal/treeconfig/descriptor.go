// Package treeconfig loads a JSON tree descriptor into a constructed
// *bt.Node graph, validating required properties per node kind and
// rejecting cycles and duplicate names at construction.
package treeconfig

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Descriptor is the on-the-wire shape of one tree node and its
// children: a {name, type, properties, children} record.
type Descriptor struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Children   []Descriptor   `json:"children"`
}

// Load decodes a single Descriptor tree from r.
func Load(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: decode descriptor: %v", ErrConfigInvalid, err)
	}
	return &d, nil
}

var titleCaser = cases.Title(language.Und)

// property looks up a property by name, case-insensitively — so a
// descriptor author can write "Memory_Policy" or "memory_policy"
// interchangeably. An exact-case key wins; if several other keys match
// case-insensitively, which one is returned is not defined.
func (d Descriptor) property(name string) (any, bool) {
	if v, ok := d.Properties[name]; ok {
		return v, true
	}
	target := normalizePropertyName(name)
	for k, v := range d.Properties {
		if normalizePropertyName(k) == target {
			return v, true
		}
	}
	return nil, false
}

func normalizePropertyName(name string) string {
	return titleCaser.String(name)
}

func (d Descriptor) stringProperty(name string) (string, bool) {
	v, ok := d.property(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (d Descriptor) intProperty(name string) (int, bool) {
	v, ok := d.property(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (d Descriptor) floatProperty(name string) (float64, bool) {
	v, ok := d.property(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (d Descriptor) boolProperty(name string) (bool, bool) {
	v, ok := d.property(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
