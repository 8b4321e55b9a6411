// Package fields resolves logical field names against loosely-typed tenant
// records and formats column names for display.
//
// Tenant-custom columns are stored with an inconsistent suffix convention
// (name, name__a, name_a) and sometimes in snake_case while callers use
// camelCase, so every read of a logical field goes through Resolve.
package fields

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/tenantdesk/internal/models"
)

const (
	suffixDouble = "__a"
	suffixSingle = "_a"
)

// Candidates returns the keys Resolve tries for name, in lookup order.
func Candidates(name string) []string {
	out := make([]string, 0, 5)
	out = append(out, name)
	if !strings.HasSuffix(name, suffixDouble) {
		out = append(out, name+suffixDouble)
	}
	if !strings.HasSuffix(name, suffixSingle) {
		out = append(out, name+suffixSingle)
	}
	snake := SnakeCase(name)
	out = append(out, snake, snake+suffixDouble)
	return out
}

// Resolve returns the value of the logical field name in f. A key that is
// present with a nil value counts as a hit. ok is false when no candidate
// key exists.
func Resolve(f models.Fields, name string) (value any, ok bool) {
	if f == nil {
		return nil, false
	}
	for _, key := range Candidates(name) {
		if v, found := f[key]; found {
			return v, true
		}
	}
	return nil, false
}

// SnakeCase prefixes every ASCII upper-case letter with an underscore and
// lowers the whole name. "companyName" becomes "company_name"; "ISO" becomes
// "_i_s_o"; "Émile" becomes "émile".
func SnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// FormatColumnLabel turns a snake_case column name into a Title Case label.
func FormatColumnLabel(column string) string {
	parts := strings.Split(column, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		runes := []rune(p)
		parts[i] = strings.ToUpper(string(runes[0])) + strings.ToLower(string(runes[1:]))
	}
	return strings.Join(parts, " ")
}

// DisplayValue renders the resolved value of name for a table cell. Empty or
// missing values fall back to fallback, then to "-".
func DisplayValue(f models.Fields, name string, fallback any) string {
	if v, ok := Resolve(f, name); ok && truthy(v) {
		return fmt.Sprint(v)
	}
	if truthy(fallback) {
		return fmt.Sprint(fallback)
	}
	return "-"
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
