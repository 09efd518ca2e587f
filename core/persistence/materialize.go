package persistence

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/schema"
)

// ReadDocuments reads every row of rows into a Document keyed by column name.
// A converter whose ID matches a column transforms that column's non-nil
// values.
func ReadDocuments(rows *sql.Rows, converters []parts.ValueConverter) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	transforms := make([]parts.Converter, len(columns))
	for i, col := range columns {
		for _, vc := range converters {
			if vc.ID == col {
				transforms[i] = vc.Transform
				break
			}
		}
	}

	var results []schema.Document
	for rows.Next() {
		row := make(schema.Document, len(columns))
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, col := range columns {
			val := values[i]
			if val != nil && transforms[i] != nil {
				converted, err := transforms[i](val)
				if err != nil {
					return nil, fmt.Errorf("failed to convert column %s: %w", col, err)
				}
				val = converted
			}
			row[col] = val
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// Materialize builds one T per document, setting each mapped field from the
// column of the same name. Columns without a field are ignored.
func Materialize[T any](docs []schema.Document) ([]T, error) {
	def, err := schema.Define(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var entity T
		target := reflect.ValueOf(&entity).Elem()
		for _, f := range def.Fields {
			raw, ok := doc[f.MemberName]
			if !ok {
				continue
			}
			if err := assign(target.FieldByIndex(f.Index), raw); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.Name, f.MemberName, err)
			}
		}
		out = append(out, entity)
	}
	return out, nil
}

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
)

// assign stores a driver value in dst, converting between the representations
// drivers commonly return and the declared field type.
func assign(dst reflect.Value, raw any) error {
	if raw == nil {
		dst.SetZero()
		return nil
	}
	if scanner, ok := dst.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(raw)
	}

	src := reflect.ValueOf(raw)
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), raw); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if src.Kind() == dst.Kind() && src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		switch v := raw.(type) {
		case int64:
			dst.SetBool(v != 0)
			return nil
		case []byte:
			dst.SetBool(string(v) == "1" || string(v) == "true")
			return nil
		}
	case reflect.String:
		if b, ok := raw.([]byte); ok {
			dst.SetString(string(b))
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if isNumeric(src.Kind()) {
			dst.Set(src.Convert(dst.Type()))
			return nil
		}
	case reflect.Slice:
		if dst.Type() == bytesType {
			if s, ok := raw.(string); ok {
				dst.SetBytes([]byte(s))
				return nil
			}
		}
	case reflect.Struct:
		if dst.Type() == timeType {
			if s, ok := raw.(string); ok {
				return parseTime(dst, s)
			}
			if b, ok := raw.([]byte); ok {
				return parseTime(dst, string(b))
			}
		}
	}
	return fmt.Errorf("cannot assign %T to %s", raw, dst.Type())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(dst reflect.Value, s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as a time", s)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
