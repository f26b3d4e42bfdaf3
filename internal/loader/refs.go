package loader

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches {{ ref('name') }} with either quote style.
var refPattern = regexp.MustCompile(`\{\{\s*ref\(\s*['"]([^'"]+)['"]\s*\)\s*\}\}`)

// thisPattern matches {{ this }}, the snapshot's own target table.
var thisPattern = regexp.MustCompile(`\{\{\s*this\s*\}\}`)

// ExtractRefs returns the snapshot names referenced via {{ ref(...) }} in
// source order, deduplicated.
func ExtractRefs(sql string) []string {
	matches := refPattern.FindAllStringSubmatch(sql, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var refs []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

// UsesThis reports whether the SQL references {{ this }}.
func UsesThis(sql string) bool {
	return thisPattern.MatchString(sql)
}

// RenderSQL substitutes every {{ ref('name') }} with the table name
// returned by resolve, and {{ this }} with the given target table.
func RenderSQL(sql string, resolve func(name string) (string, error), this string) (string, error) {
	for _, name := range ExtractRefs(sql) {
		target, err := resolve(name)
		if err != nil {
			return "", fmt.Errorf("cannot resolve ref %q: %w", name, err)
		}
		for _, quote := range []string{"'", `"`} {
			pattern := regexp.MustCompile(`\{\{\s*ref\(\s*` + quote + regexp.QuoteMeta(name) + quote + `\s*\)\s*\}\}`)
			sql = pattern.ReplaceAllString(sql, target)
		}
	}
	if UsesThis(sql) {
		if this == "" {
			return "", fmt.Errorf("{{ this }} used but no target table is set")
		}
		sql = thisPattern.ReplaceAllString(sql, this)
	}
	if strings.Contains(sql, "{{") {
		return "", fmt.Errorf("unresolved template expression in SQL")
	}
	return sql, nil
}
