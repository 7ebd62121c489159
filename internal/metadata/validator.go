package metadata

import (
	"fmt"
	"sort"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "entity[User]" or "entity[User].owner"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

var validAssociationTypes = map[AssociationType]bool{
	ManyToOne:  true,
	OneToMany:  true,
	ManyToMany: true,
}

// validate checks every entity and association. Entities are visited in
// name order so the first error is stable.
func (r *Registry) validate() []error {
	var errs []error
	add := func(path, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	for _, name := range r.Names() {
		e := r.entities[name]
		path := fmt.Sprintf("entity[%s]", name)
		if name == "" {
			add("", "entity name is required")
			continue
		}
		if e.Table == "" {
			add(path, "table is required")
		}
		if _, ok := e.Associations[e.ID]; ok {
			add(path, "identifier %q must not be an association", e.ID)
		}

		members := make([]string, 0, len(e.Associations))
		for m := range e.Associations {
			members = append(members, m)
		}
		sort.Strings(members)

		for _, m := range members {
			a := e.Associations[m]
			apath := path + "." + m
			if a == nil {
				add(apath, "association is empty")
				continue
			}
			if !validAssociationTypes[a.Type] {
				add(apath, "invalid type %q", a.Type)
				continue
			}
			target, ok := r.entities[a.Target]
			if !ok {
				add(apath, "target entity %q is not mapped", a.Target)
				continue
			}
			switch a.Type {
			case ManyToOne:
				if a.JoinColumn == "" {
					add(apath, "many_to_one requires join_column")
				}
			case OneToMany:
				back, ok := target.Associations[a.MappedBy]
				switch {
				case a.MappedBy == "":
					add(apath, "one_to_many requires mapped_by")
				case !ok || back == nil:
					add(apath, "mapped_by %q is not an association of %s", a.MappedBy, target.Name)
				case back.Type != ManyToOne || back.Target != name:
					add(apath, "mapped_by %q must be a many_to_one association to %s", a.MappedBy, name)
				}
			case ManyToMany:
				if a.JoinTable == "" || a.JoinColumn == "" || a.InverseJoinColumn == "" {
					add(apath, "many_to_many requires join_table, join_column and inverse_join_column")
				}
			}
		}
	}
	return errs
}
