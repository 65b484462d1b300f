// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Registry generates and caches reflection information for database-mapped
// struct types. A Registry is owned by a data source and lives exactly as
// long as it does; it is safe for concurrent use.
type Registry struct {
	mutex sync.RWMutex
	cache map[reflect.Type]*Info
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[reflect.Type]*Info)}
}

// LookupValue returns the Info for the dynamic type of value, generating and
// caching it as required. Pointers are dereferenced.
func (r *Registry) LookupValue(value any) (*Info, error) {
	if value == (any)(nil) {
		return nil, fmt.Errorf("cannot reflect nil value")
	}
	t := reflect.TypeOf(value)
	return r.Lookup(DerefType(t))
}

// Lookup returns the Info for the given struct type, generating and caching
// it as required. Concurrent first lookups of the same type may both generate
// the Info; exactly one result is cached and generation is idempotent, so all
// callers observe equivalent values.
func (r *Registry) Lookup(t reflect.Type) (*Info, error) {
	t = DerefType(t)

	r.mutex.RLock()
	info, found := r.cache[t]
	r.mutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	// Check if the Info has been inserted by someone else since we last
	// checked.
	if prior, found := r.cache[t]; found {
		info = prior
	} else {
		r.cache[t] = info
	}
	r.mutex.Unlock()

	return info, nil
}

// generate produces reflection information for the input type that is
// specifically required to map it to table columns.
func generate(t reflect.Type) (*Info, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot map %s, need struct type", t.Kind())
	}

	info := Info{
		Type:     t,
		byColumn: make(map[string]int),
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		// Fields without a "db" tag are outside of our remit.
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("field %q of struct %s not exported", f.Name, t.Name())
		}
		column, opts, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("cannot parse tag for field %s.%s: %s", t.Name(), f.Name, err)
		}
		if opts.decompose && DerefType(f.Type).Kind() != reflect.Struct {
			return nil, fmt.Errorf("cannot decompose field %s.%s: need struct type, got %s", t.Name(), f.Name, f.Type.Kind())
		}
		lower := strings.ToLower(column)
		if prior, ok := info.byColumn[lower]; ok {
			return nil, fmt.Errorf("fields %q and %q of struct %s have the same db tag %q",
				info.Properties[prior].Name, f.Name, t.Name(), column)
		}
		info.byColumn[lower] = len(info.Properties)
		info.Properties = append(info.Properties, Property{
			Name:      f.Name,
			Column:    column,
			Index:     i,
			Type:      f.Type,
			IsKey:     opts.key,
			Decompose: opts.decompose,
			OmitEmpty: opts.omitEmpty,
		})
	}

	return &info, nil
}

type tagOptions struct {
	key       bool
	decompose bool
	omitEmpty bool
}

// validColNameRx is aligned with the identifier charset accepted by the
// dialect quoting rules.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns the column name and the
// tag options.
func parseTag(tag string) (string, tagOptions, error) {
	options := strings.Split(tag, ",")

	var opts tagOptions
	if len(options) > 1 {
		for _, flag := range options[1:] {
			switch flag {
			case "key":
				opts.key = true
			case "decompose":
				opts.decompose = true
			case "omitempty":
				opts.omitEmpty = true
			default:
				return "", opts, fmt.Errorf("unsupported flag %q in tag %q", flag, tag)
			}
		}
	}

	name := options[0]
	if len(name) == 0 {
		return "", opts, fmt.Errorf("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return "", opts, fmt.Errorf("invalid column name in 'db' tag: %q", name)
	}

	return name, opts, nil
}
