package handler

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError maps field names to messages.
type ValidationError map[string][]string

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(e[f]) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", f, e[f][0]))
		}
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func (e ValidationError) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Err returns nil when no field failed.
func (e ValidationError) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
