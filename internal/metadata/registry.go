// Package metadata maps entities to tables, columns and associations.
package metadata

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupportedAPIVersion is the apiVersion accepted in mapping documents.
const SupportedAPIVersion = "countopt/v1"

// KindEntityMapping is the kind of a mapping document.
const KindEntityMapping = "EntityMapping"

// AssociationType is the cardinality of an association.
type AssociationType string

// ManyToOne and friends enumerate the supported association types.
const (
	ManyToOne  AssociationType = "many_to_one"
	OneToMany  AssociationType = "one_to_many"
	ManyToMany AssociationType = "many_to_many"
)

// MappingDoc is the YAML envelope of an entity mapping file.
type MappingDoc struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Entities   []Entity `yaml:"entities"`
}

// Entity maps an entity to its table.
type Entity struct {
	Name   string `yaml:"name"`
	Table  string `yaml:"table"`
	ID     string `yaml:"id,omitempty"` // identifier member, defaults to "id"
	Fields map[string]string `yaml:"fields,omitempty"` // member -> column

	Associations map[string]*Association `yaml:"associations,omitempty"`
}

// Association describes how a member reaches another entity.
//
//   - many_to_one: JoinColumn on this entity's table holds the target id.
//   - one_to_many: MappedBy names the many_to_one association on the target
//     pointing back to this entity.
//   - many_to_many: JoinTable links JoinColumn (this side) to
//     InverseJoinColumn (target side).
type Association struct {
	Type              AssociationType `yaml:"type"`
	Target            string          `yaml:"target"`
	JoinColumn        string          `yaml:"join_column,omitempty"`
	MappedBy          string          `yaml:"mapped_by,omitempty"`
	JoinTable         string          `yaml:"join_table,omitempty"`
	InverseJoinColumn string          `yaml:"inverse_join_column,omitempty"`
}

// Column returns the column of a member. Members without an explicit
// mapping use a column of the same name.
func (e *Entity) Column(member string) string {
	if col, ok := e.Fields[member]; ok {
		return col
	}
	return member
}

// IDColumn returns the column of the identifier member.
func (e *Entity) IDColumn() string {
	return e.Column(e.ID)
}

// Association returns the named association, if any.
func (e *Entity) Association(member string) (*Association, bool) {
	a, ok := e.Associations[member]
	return a, ok
}

// NotFoundError indicates an entity or member is not mapped.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// Registry holds entity mappings keyed by name.
type Registry struct {
	entities map[string]*Entity
}

// Load reads a mapping document from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified mapping file
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes and validates a mapping document. Unknown fields are
// rejected.
func Parse(data []byte) (*Registry, error) {
	var doc MappingDoc
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if doc.APIVersion != SupportedAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q (expected %q)", doc.APIVersion, SupportedAPIVersion)
	}
	if doc.Kind != KindEntityMapping {
		return nil, fmt.Errorf("unexpected kind %q (expected %q)", doc.Kind, KindEntityMapping)
	}
	return NewRegistry(doc.Entities)
}

// NewRegistry validates entities and indexes them by name.
func NewRegistry(entities []Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}
	for i := range entities {
		e := entities[i]
		if e.ID == "" {
			e.ID = "id"
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, fmt.Errorf("entity %q is declared more than once", e.Name)
		}
		r.entities[e.Name] = &e
	}
	if errs := r.validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid mapping: %w", errs[0])
	}
	return r, nil
}

// Entity returns the mapping of name. A namespaced name (Bundle:Entity)
// falls back to its short name when the full name is not mapped.
func (r *Registry) Entity(name string) (*Entity, error) {
	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		if e, ok := r.entities[name[i+1:]]; ok {
			return e, nil
		}
	}
	return nil, &NotFoundError{Message: fmt.Sprintf("entity %q is not mapped", name)}
}

// IdentifierField returns the identifier member of an entity.
func (r *Registry) IdentifierField(entity string) (string, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// Target returns the entity an association of entity points to.
func (r *Registry) Target(entity *Entity, member string) (*Association, *Entity, error) {
	a, ok := entity.Association(member)
	if !ok {
		return nil, nil, &NotFoundError{Message: fmt.Sprintf("entity %q has no association %q", entity.Name, member)}
	}
	target, err := r.Entity(a.Target)
	if err != nil {
		return nil, nil, err
	}
	return a, target, nil
}

// AssociationTarget returns the name of the entity member points to and
// whether the association is many-to-one.
func (r *Registry) AssociationTarget(entity, member string) (string, bool, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return "", false, err
	}
	a, target, err := r.Target(e, member)
	if err != nil {
		return "", false, err
	}
	return target.Name, a.Type == ManyToOne, nil
}

// Names returns the mapped entity names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
