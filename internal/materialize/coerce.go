// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package materialize

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	bytesType   = reflect.TypeOf([]byte(nil))
)

// coerceAssign assigns a driver-provided value to a target field, applying
// representational conversions where the column's native type differs from
// the property's declared type. A nil source zeroes the field; for pointer
// fields that preserves NULL as nil.
func coerceAssign(src any, field reflect.Value) error {
	if !field.CanSet() {
		return fmt.Errorf("internal error: field of type %s is not settable", field.Type())
	}
	if src == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	// Pointer fields are set through a freshly allocated element.
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := coerceAssign(src, elem.Elem()); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if field.Addr().Type().Implements(scannerType) {
		return field.Addr().Interface().(sql.Scanner).Scan(src)
	}

	sv := reflect.ValueOf(src)
	ft := field.Type()

	// Exact or directly assignable types, time.Time included.
	if sv.Type().AssignableTo(ft) {
		field.Set(sv)
		return nil
	}

	switch ft {
	case uuidType:
		return coerceUUID(src, field)
	case timeType:
		return coerceTime(src, field)
	}

	switch ft.Kind() {
	case reflect.String:
		switch v := src.(type) {
		case []byte:
			field.SetString(string(v))
			return nil
		case string:
			field.SetString(v)
			return nil
		}
	case reflect.Bool:
		switch v := src.(type) {
		case bool:
			field.SetBool(v)
			return nil
		case int64:
			field.SetBool(v != 0)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if sv.Type().ConvertibleTo(ft) && sv.Kind() != reflect.String && sv.Type() != bytesType {
			field.Set(sv.Convert(ft))
			return nil
		}
	case reflect.Slice:
		if ft == bytesType {
			switch v := src.(type) {
			case []byte:
				field.SetBytes(append([]byte(nil), v...))
				return nil
			case string:
				field.SetBytes([]byte(v))
				return nil
			}
		}
	}

	// Named types over convertible kinds.
	if sv.Type().ConvertibleTo(ft) && sv.Kind() != reflect.String && sv.Type() != bytesType {
		field.Set(sv.Convert(ft))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, ft)
}

func coerceUUID(src any, field reflect.Value) error {
	switch v := src.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(id))
		return nil
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(id))
			return nil
		}
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(id))
		return nil
	}
	return fmt.Errorf("cannot assign %T to uuid.UUID", src)
}

func coerceTime(src any, field reflect.Value) error {
	switch v := src.(type) {
	case time.Time:
		field.Set(reflect.ValueOf(v))
		return nil
	case string:
		return parseTimeInto(v, field)
	case []byte:
		return parseTimeInto(string(v), field)
	}
	return fmt.Errorf("cannot assign %T to time.Time", src)
}

// parseTimeInto accepts the formats SQLite drivers commonly report.
func parseTimeInto(s string, field reflect.Value) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			field.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", s)
}
