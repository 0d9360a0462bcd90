package output

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

// TableFormatter formats output as a table using pterm.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Supports reports whether data is a non-empty slice or map, or a struct.
func (f *TableFormatter) Supports(data interface{}) bool {
	if data == nil {
		return false
	}

	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len() > 0
	case reflect.Struct:
		return true
	case reflect.Ptr:
		return !v.IsNil() && f.Supports(v.Elem().Interface())
	}
	return false
}

// Format formats the data as a table and writes it to the writer.
func (f *TableFormatter) Format(w io.Writer, data interface{}, config *FormatConfig) error {
	if config == nil {
		config = NewFormatConfig()
	}
	if data == nil {
		return fmt.Errorf("cannot format nil data as table")
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("cannot format nil pointer as table")
		}
		v = v.Elem()
	}

	var tableData [][]string
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return fmt.Errorf("empty slice")
		}
		tableData = f.formatSlice(v, config)
	case reflect.Map:
		if v.Len() == 0 {
			return fmt.Errorf("empty map")
		}
		tableData = f.formatMap(v, config)
	case reflect.Struct:
		tableData = f.formatStruct(v, config)
	default:
		return fmt.Errorf("unsupported data type for table formatting: %s", v.Kind())
	}

	if config.SortBy != "" {
		tableData = f.sortTableData(tableData, config)
	}

	table := pterm.DefaultTable.WithHasHeader(config.ShowHeaders)
	if config.Colors {
		table = table.WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold))
	} else {
		pterm.DisableColor()
		defer pterm.EnableColor()
	}

	rendered, err := table.WithData(tableData).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	_, err = fmt.Fprintln(w, rendered)
	return err
}

func (f *TableFormatter) formatSlice(v reflect.Value, config *FormatConfig) [][]string {
	columns := config.Columns
	if len(columns) == 0 {
		columns = autoDetectColumns(v.Index(0))
	}

	tableData := make([][]string, 0, v.Len()+1)
	if config.ShowHeaders {
		headers := make([]string, len(columns))
		for i, col := range columns {
			headers[i] = col.Header
			if headers[i] == "" {
				headers[i] = strings.ToUpper(col.Field)
			}
		}
		tableData = append(tableData, headers)
	}

	for i := 0; i < v.Len(); i++ {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = formatValue(extractField(v.Index(i), col.Field))
			if col.Width > 3 && len(row[j]) > col.Width {
				row[j] = row[j][:col.Width-3] + "..."
			}
		}
		tableData = append(tableData, row)
	}

	return tableData
}

func (f *TableFormatter) formatMap(v reflect.Value, config *FormatConfig) [][]string {
	tableData := make([][]string, 0, v.Len()+1)
	if config.ShowHeaders {
		tableData = append(tableData, []string{"KEY", "VALUE"})
	}

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})

	for _, key := range keys {
		tableData = append(tableData, []string{
			fmt.Sprint(key.Interface()),
			formatValue(v.MapIndex(key).Interface()),
		})
	}

	return tableData
}

// formatStruct renders a struct as FIELD/VALUE rows, skipping empty
// omitempty fields.
func (f *TableFormatter) formatStruct(v reflect.Value, config *FormatConfig) [][]string {
	t := v.Type()
	tableData := make([][]string, 0, t.NumField()+1)
	if config.ShowHeaders {
		tableData = append(tableData, []string{"FIELD", "VALUE"})
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty := jsonName(field)
		if name == "-" {
			continue
		}
		value := v.Field(i)
		if omitEmpty && value.IsZero() {
			continue
		}
		tableData = append(tableData, []string{name, formatValue(value.Interface())})
	}

	return tableData
}

func autoDetectColumns(v reflect.Value) []Column {
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	var columns []Column
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name, _ := jsonName(field)
			if name == "-" {
				continue
			}
			columns = append(columns, Column{Field: name, Header: strings.ToUpper(name)})
		}
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		for _, key := range v.MapKeys() {
			keys = append(keys, fmt.Sprint(key.Interface()))
		}
		sort.Strings(keys)
		for _, key := range keys {
			columns = append(columns, Column{Field: key, Header: strings.ToUpper(key)})
		}
	}

	return columns
}

func jsonName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name, false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = field.Name
	}
	omitEmpty := false
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

func extractField(v reflect.Value, field string) interface{} {
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		for _, key := range v.MapKeys() {
			if fmt.Sprint(key.Interface()) == field {
				return v.MapIndex(key).Interface()
			}
		}
	case reflect.Struct:
		if fv := v.FieldByName(field); fv.IsValid() {
			return fv.Interface()
		}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if name, _ := jsonName(t.Field(i)); name == field {
				return v.Field(i).Interface()
			}
		}
	}

	return nil
}

func formatValue(value interface{}) string {
	if value == nil {
		return ""
	}

	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		value = v.Elem().Interface()
	}

	switch val := value.(type) {
	case string:
		return val
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case time.Duration:
		return val.Round(time.Second).String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (f *TableFormatter) sortTableData(data [][]string, config *FormatConfig) [][]string {
	if !config.ShowHeaders || len(data) <= 2 {
		return data
	}

	colIndex := -1
	for i, header := range data[0] {
		if strings.EqualFold(header, config.SortBy) {
			colIndex = i
			break
		}
	}
	if colIndex == -1 {
		return data
	}

	rows := data[1:]
	sort.SliceStable(rows, func(i, j int) bool {
		if config.SortAsc {
			return rows[i][colIndex] < rows[j][colIndex]
		}
		return rows[i][colIndex] > rows[j][colIndex]
	})

	return data
}
