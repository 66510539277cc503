// Package model holds the static per-model attribute mapping tables.
//
// A device reports a model string like "AS25S2SF1FA-WH"; the registry
// resolves that to a Definition carrying the wire property ID and value
// remapping for each canonical attribute name. The table is embedded at
// build time and read-only for the process lifetime.
package model

import (
	"fmt"
	"regexp"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// Attribute maps a canonical attribute name to its model-specific wire ID.
type Attribute struct {
	Name   string            `yaml:"name"`
	WireID string            `yaml:"id"`
	Values map[string]string `yaml:"values,omitempty"`

	reverse map[string]string
}

// Definition is the mapping table for one model family.
type Definition struct {
	Pattern      string      `yaml:"pattern"`
	GroupCommand string      `yaml:"group_command"`
	Attributes   []Attribute `yaml:"attributes"`

	re    *regexp.Regexp
	index map[string]*Attribute
}

// WireID returns the wire property ID for a canonical attribute name.
func (d *Definition) WireID(name string) (string, bool) {
	attr, ok := d.index[name]
	if !ok {
		return "", false
	}
	return attr.WireID, true
}

// WireValue remaps a logical value to its wire representation for the
// given attribute. Attributes without a value table pass through.
func (d *Definition) WireValue(name, value string) string {
	attr, ok := d.index[name]
	if !ok || attr.Values == nil {
		return value
	}
	if mapped, ok := attr.Values[value]; ok {
		return mapped
	}
	return value
}

// LogicalValue remaps a wire value back to its logical representation.
func (d *Definition) LogicalValue(name, value string) string {
	attr, ok := d.index[name]
	if !ok || attr.reverse == nil {
		return value
	}
	if mapped, ok := attr.reverse[value]; ok {
		return mapped
	}
	return value
}

// Registry resolves model strings to mapping definitions.
type Registry struct {
	definitions []*Definition
}

type tableFile struct {
	Models []*Definition `yaml:"models"`
}

// Load parses the embedded model table.
func Load() (*Registry, error) {
	return Parse(modelsYAML)
}

// Parse builds a registry from a raw YAML table.
func Parse(data []byte) (*Registry, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model table: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model table is empty")
	}

	for _, def := range file.Models {
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return nil, fmt.Errorf("model pattern %q: %w", def.Pattern, err)
		}
		def.re = re
		def.index = make(map[string]*Attribute, len(def.Attributes))
		for i := range def.Attributes {
			attr := &def.Attributes[i]
			if attr.Values != nil {
				attr.reverse = make(map[string]string, len(attr.Values))
				for logical, wire := range attr.Values {
					attr.reverse[wire] = logical
				}
			}
			def.index[attr.Name] = attr
		}
	}

	return &Registry{definitions: file.Models}, nil
}

// Resolve returns the first definition whose pattern matches the model
// string, or nil when the model is unknown. Callers fall back to the
// protocol default IDs in that case.
func (r *Registry) Resolve(model string) *Definition {
	for _, def := range r.definitions {
		if def.re.MatchString(model) {
			return def
		}
	}
	return nil
}
