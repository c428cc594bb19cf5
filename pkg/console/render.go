package console

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/timeutil"
)

var renderLog = logger.New("console:render")

// RenderStruct renders a struct as an aligned key/value block using
// `console` struct tags:
//
//	`console:"header:Column Name"` renames the field
//	`console:"title:Section"`      sets the block title (on the first field)
//	`console:"omitempty"`          skips zero values
//	`console:"-"`                  skips the field
//
// Slices of structs are rendered as tables.
func RenderStruct(v any) string {
	renderLog.Printf("Rendering struct: type=%T", v)
	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return ""
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return fmt.Sprintf("%v\n", v)
	}

	var out strings.Builder
	typ := val.Type()

	type pair struct{ name, value string }
	var pairs []pair
	var tables []string
	width := 0

	for i := range val.NumField() {
		fieldType := typ.Field(i)
		if !fieldType.IsExported() {
			continue
		}
		field := val.Field(i)
		tag := parseConsoleTag(fieldType.Tag.Get("console"))
		if tag.title != "" && out.Len() == 0 {
			fmt.Fprintf(&out, "# %s\n\n", tag.title)
		}
		if tag.skip || (tag.omitempty && field.IsZero()) {
			continue
		}

		name := fieldType.Name
		if tag.header != "" {
			name = tag.header
		}

		if field.Kind() == reflect.Slice && elemIsStruct(field.Type()) {
			if field.Len() > 0 {
				tables = append(tables, RenderTable(buildTableConfig(field, name)))
			}
			continue
		}

		width = max(width, len(name))
		pairs = append(pairs, pair{name, formatFieldValue(field)})
	}

	for _, p := range pairs {
		fmt.Fprintf(&out, "  %-*s: %s\n", width, p.name, p.value)
	}
	for _, t := range tables {
		out.WriteString("\n" + t)
	}
	return out.String()
}

func elemIsStruct(t reflect.Type) bool {
	e := t.Elem()
	for e.Kind() == reflect.Pointer {
		e = e.Elem()
	}
	return e.Kind() == reflect.Struct
}

func buildTableConfig(val reflect.Value, title string) TableConfig {
	config := TableConfig{Title: title}
	elemType := val.Type().Elem()
	for elemType.Kind() == reflect.Pointer {
		elemType = elemType.Elem()
	}

	var columns []int
	for i := range elemType.NumField() {
		f := elemType.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := parseConsoleTag(f.Tag.Get("console"))
		if tag.skip {
			continue
		}
		header := f.Name
		if tag.header != "" {
			header = tag.header
		}
		config.Headers = append(config.Headers, header)
		columns = append(columns, i)
	}

	for i := range val.Len() {
		elem := val.Index(i)
		for elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		row := make([]string, 0, len(columns))
		for _, c := range columns {
			row = append(row, formatFieldValue(elem.Field(c)))
		}
		config.Rows = append(config.Rows, row)
	}
	return config
}

type consoleTag struct {
	header    string
	title     string
	omitempty bool
	skip      bool
}

func parseConsoleTag(raw string) consoleTag {
	var tag consoleTag
	if raw == "-" {
		tag.skip = true
		return tag
	}
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "omitempty":
			tag.omitempty = true
		case strings.HasPrefix(part, "header:"):
			tag.header = strings.TrimPrefix(part, "header:")
		case strings.HasPrefix(part, "title:"):
			tag.title = strings.TrimPrefix(part, "title:")
		}
	}
	return tag
}

func formatFieldValue(v reflect.Value) string {
	if !v.IsValid() {
		return "-"
	}
	if d, ok := v.Interface().(time.Duration); ok {
		return timeutil.FormatDuration(d)
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return "-"
		}
		return formatFieldValue(v.Elem())
	case reflect.Bool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case reflect.String:
		if v.String() == "" {
			return "-"
		}
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
