// Package projection filters remote records down to a caller-supplied set of
// attributes.
//
// Each kind of record declares the attributes it knows about in a FieldSet.
// Requested names are normalized to snake_case before being checked, so
// "clusterId" and "cluster_id" are the same field. Unknown names are rejected
// rather than silently matching nothing.
package projection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// FieldSet is the set of attributes a kind of record may be projected to.
type FieldSet struct {
	resource string
	fields   map[string]struct{}
	aliases  map[string]string
}

// NewFieldSet returns a FieldSet for resource. Aliases map an extra accepted
// name to one of fields, e.g. "id" to "cluster_id".
func NewFieldSet(resource string, fields []string, aliases map[string]string) *FieldSet {
	fs := &FieldSet{
		resource: resource,
		fields:   make(map[string]struct{}, len(fields)),
		aliases:  make(map[string]string, len(aliases)),
	}
	for _, f := range fields {
		fs.fields[f] = struct{}{}
	}
	for alias, target := range aliases {
		if _, ok := fs.fields[target]; !ok {
			panic(fmt.Sprintf("projection: alias %q targets unknown field %q", alias, target))
		}
		fs.aliases[alias] = target
	}
	return fs
}

// Resource returns the name of the kind of record the set describes.
func (fs *FieldSet) Resource() string {
	return fs.resource
}

// Names returns every accepted name, aliases included, sorted.
func (fs *FieldSet) Names() []string {
	names := make([]string, 0, len(fs.fields)+len(fs.aliases))
	for f := range fs.fields {
		names = append(names, f)
	}
	for a := range fs.aliases {
		names = append(names, a)
	}
	sort.Strings(names)
	return names
}

// UnknownFieldError is returned by Parse for names outside the FieldSet.
type UnknownFieldError struct {
	Resource string
	Unknown  []string
	Valid    []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown %s field(s) %s, valid fields are: %s",
		e.Resource,
		strings.Join(e.Unknown, ", "),
		strings.Join(e.Valid, ", "),
	)
}

// Needs is a validated, normalized list of requested attribute names. An empty
// Needs selects every attribute.
type Needs []string

// Parse normalizes and validates requested names. Each entry may itself be a
// comma-separated list. Blank entries and duplicates are dropped.
func (fs *FieldSet) Parse(requested []string) (Needs, error) {
	var (
		needs   Needs
		unknown []string
		seen    = make(map[string]struct{})
	)

	for _, entry := range requested {
		for _, name := range strings.Split(entry, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			name = strcase.ToSnake(name)
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}

			if !fs.known(name) {
				unknown = append(unknown, name)
				continue
			}
			needs = append(needs, name)
		}
	}

	if len(unknown) > 0 {
		return nil, &UnknownFieldError{
			Resource: fs.resource,
			Unknown:  unknown,
			Valid:    fs.Names(),
		}
	}

	return needs, nil
}

func (fs *FieldSet) known(name string) bool {
	if _, ok := fs.fields[name]; ok {
		return true
	}
	_, ok := fs.aliases[name]
	return ok
}

// Record returns a copy of rec holding only the requested attributes, keyed by
// the requested name. Attributes missing from rec are left out. An empty needs
// returns rec unchanged.
func (fs *FieldSet) Record(rec map[string]any, needs Needs) map[string]any {
	if len(needs) == 0 {
		return rec
	}

	out := make(map[string]any, len(needs))
	for _, name := range needs {
		source := name
		if target, ok := fs.aliases[name]; ok {
			source = target
		}
		if v, ok := rec[source]; ok {
			out[name] = v
		}
	}
	return out
}

// Records projects every record in recs.
func Records[R ~map[string]any](fs *FieldSet, recs []R, needs Needs) []R {
	if len(needs) == 0 {
		return recs
	}

	out := make([]R, len(recs))
	for i, rec := range recs {
		out[i] = R(fs.Record(rec, needs))
	}
	return out
}
