// Package metadata recovers a schema catalog — classes, enums, excel-row
// markers, and the derived subclass dispatch tables — from a textual
// class dump of the game's runtime type metadata.
package metadata

import (
	"fmt"
	"sort"
)

// FieldDecl is one element of a class's wire schema. Immutable after
// construction: generic iff GenericArgs is non-empty, and IsArray/IsGeneric
// are mutually exclusive.
type FieldDecl struct {
	Name        string
	Type        string
	IsArray     bool
	IsGeneric   bool
	GenericArgs []string
}

// EnumKind is the wire width/signedness of an enum's underlying value.
type EnumKind int

const (
	EnumSigned32 EnumKind = iota
	EnumUint16
	EnumUint32
)

// EnumDecl is a named enumeration with a bijective name<->integer mapping.
type EnumDecl struct {
	Name     string
	Kind     EnumKind
	byName   map[string]int64
	byValue  map[int64]string
}

func newEnumDecl(name string) *EnumDecl {
	return &EnumDecl{
		Name:    name,
		Kind:    EnumSigned32,
		byName:  make(map[string]int64),
		byValue: make(map[int64]string),
	}
}

// Add registers a member. Last write wins on collision, matching a plain
// dict assignment in the reference parser.
func (e *EnumDecl) Add(name string, value int64) {
	e.byName[name] = value
	e.byValue[value] = name
}

// NameOf returns the member name for value.
func (e *EnumDecl) NameOf(value int64) (string, bool) {
	n, ok := e.byValue[value]
	return n, ok
}

// ValueOf returns the integer value of member name.
func (e *EnumDecl) ValueOf(name string) (int64, bool) {
	v, ok := e.byName[name]
	return v, ok
}

// ClassDecl is one class's own (non-inherited) schema.
type ClassDecl struct {
	Name   string
	Base   string // "" if root
	Fields []FieldDecl
}

// Catalog is the read-only-after-construction schema catalog: classes,
// enums, excel-row markers, and derived subclass indices.
type Catalog struct {
	classes         map[string]*ClassDecl
	enums           map[string]*EnumDecl
	excelRowClasses map[string]struct{}
	revBase         map[string][]string // base -> direct subclasses
	subclass        map[string]map[int]string
}

func newCatalog() *Catalog {
	return &Catalog{
		classes:         make(map[string]*ClassDecl),
		enums:           make(map[string]*EnumDecl),
		excelRowClasses: make(map[string]struct{}),
		revBase:         make(map[string][]string),
		subclass:        make(map[string]map[int]string),
	}
}

// Class looks up a class's own declaration.
func (c *Catalog) Class(name string) (*ClassDecl, bool) {
	cd, ok := c.classes[name]
	return cd, ok
}

// Enum looks up an enum declaration.
func (c *Catalog) Enum(name string) (*EnumDecl, bool) {
	ed, ok := c.enums[name]
	return ed, ok
}

// HasEnum reports whether name is a known enum.
func (c *Catalog) HasEnum(name string) bool {
	_, ok := c.enums[name]
	return ok
}

// HasClass reports whether name is a known class.
func (c *Catalog) HasClass(name string) bool {
	_, ok := c.classes[name]
	return ok
}

// ExcelRowClasses returns the set of class base names identified as
// excel-row scaffolding, in lexicographic order for deterministic
// iteration by the orchestrator.
func (c *Catalog) ExcelRowClasses() []string {
	out := make([]string, 0, len(c.excelRowClasses))
	for name := range c.excelRowClasses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BaseOf returns the immediate base class of name, or "" if name is a root
// or unknown.
func (c *Catalog) BaseOf(name string) string {
	cd, ok := c.classes[name]
	if !ok {
		return ""
	}
	return cd.Base
}

// EffectiveFields returns the wire-order field list for class name: every
// ancestor's own fields, outermost ancestor first, followed by name's own
// fields.
func (c *Catalog) EffectiveFields(name string) ([]FieldDecl, error) {
	cd, ok := c.classes[name]
	if !ok {
		return nil, fmt.Errorf("metadata: unknown class %q", name)
	}
	var chain []*ClassDecl
	cur := cd
	for {
		chain = append(chain, cur)
		if cur.Base == "" {
			break
		}
		base, ok := c.classes[cur.Base]
		if !ok {
			break
		}
		cur = base
	}
	var fields []FieldDecl
	for i := len(chain) - 1; i >= 0; i-- {
		fields = append(fields, chain[i].Fields...)
	}
	return fields, nil
}

// SubclassIndex returns the dispatch table for base, if base participates
// in a JSON-configurable hierarchy (or was registered via an override).
func (c *Catalog) SubclassIndex(base string) (map[int]string, bool) {
	idx, ok := c.subclass[base]
	return idx, ok
}

// ConcreteClassName resolves index k of base's subclass table.
func (c *Catalog) ConcreteClassName(base string, k int) (string, bool) {
	idx, ok := c.subclass[base]
	if !ok {
		return "", false
	}
	name, ok := idx[k]
	return name, ok
}

