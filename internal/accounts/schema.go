package accounts

import (
	"reflect"
	"strings"
	"sync"
)

// typeSchema is the computed column view of one concrete details type: the
// json keys it accepts, and the subset that must never be nulled once set.
type typeSchema struct {
	valid    map[string]struct{}
	required map[string]struct{}
}

func (s typeSchema) accepts(key string) bool {
	_, ok := s.valid[key]
	return ok
}

func (s typeSchema) requires(key string) bool {
	_, ok := s.required[key]
	return ok
}

// schemaCache memoises typeSchema per concrete details type. Walking the
// embedded chain is cheap but repeated per write; the cache makes it once.
type schemaCache struct {
	mu     sync.RWMutex
	byType map[reflect.Type]typeSchema
}

func (c *schemaCache) schemaFor(details Details) typeSchema {
	t := reflect.TypeOf(details)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	c.mu.RLock()
	schema, ok := c.byType[t]
	c.mu.RUnlock()
	if ok {
		return schema
	}

	schema = typeSchema{
		valid:    make(map[string]struct{}),
		required: make(map[string]struct{}),
	}
	collectFields(t, &schema)

	c.mu.Lock()
	if c.byType == nil {
		c.byType = make(map[reflect.Type]typeSchema)
	}
	c.byType[t] = schema
	c.mu.Unlock()

	return schema
}

// collectFields walks a details struct, descending into embedded structs so
// shared field sets contribute their keys to every concrete type.
func collectFields(t reflect.Type, schema *typeSchema) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}

		ft := field.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if field.Anonymous && ft.Kind() == reflect.Struct {
			collectFields(ft, schema)
			continue
		}

		key := jsonKey(field)
		if key == "" {
			continue
		}

		schema.valid[key] = struct{}{}
		if isRequiredField(field) {
			schema.required[key] = struct{}{}
		}
	}
}

func jsonKey(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name := tag
	if comma := strings.Index(tag, ","); comma >= 0 {
		name = tag[:comma]
	}
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func isRequiredField(field reflect.StructField) bool {
	for _, rule := range strings.Split(field.Tag.Get("validate"), ",") {
		if rule == "required" {
			return true
		}
	}
	return false
}
