// Package message renders guardian notification text from fixed templates.
package message

import (
	"strings"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

// Vars is the substitution context for Render.
type Vars map[string]string

// Render replaces every {token} in template with vars[token]. Tokens missing
// from vars, and unbalanced braces, are copied through unchanged.
func Render(template string, vars Vars) string {
	if !strings.Contains(template, "{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])

		end := strings.IndexByte(rest[open+1:], '}')
		if end < 0 {
			b.WriteString(rest[open:])
			break
		}
		end += open + 1

		token := rest[open+1 : end]
		if strings.ContainsRune(token, '{') {
			// "{{name}": emit the outer brace and rescan from the inner one
			b.WriteByte('{')
			rest = rest[open+1:]
			continue
		}

		if value, ok := vars[token]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[open : end+1])
		}
		rest = rest[end+1:]
	}

	return b.String()
}

// DefaultVars returns the variables every template may use for a student.
func DefaultVars(student *domain.Student, now time.Time) Vars {
	vars := Vars{
		"date": now.Format("2006-01-02"),
		"time": now.Format("15:04"),
	}
	if student != nil {
		vars["student_name"] = student.Name
		vars["barcode"] = student.Barcode
		vars["contact"] = student.Contact
	}
	return vars
}

// Merge returns a copy of base overlaid with extra.
func (v Vars) Merge(extra Vars) Vars {
	merged := make(Vars, len(v)+len(extra))
	for k, val := range v {
		merged[k] = val
	}
	for k, val := range extra {
		merged[k] = val
	}
	return merged
}
