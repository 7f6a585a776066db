package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotVisible covers both "does not exist" and "exists but the user may
// not see it". The two are deliberately indistinguishable so callers cannot
// probe for entities they have no access to.
var ErrNotVisible = errors.New("not found")

// ErrPermission means the user lacks the specific permission the operation
// needs. Editing (change_task) and archiving (delete_task) are gated
// separately.
var ErrPermission = errors.New("permission denied")

// ValidationError reports malformed or missing fields. Nothing is written
// when validation fails.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, reason))
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

type validator struct {
	fields map[string]string
}

func (v *validator) add(field, reason string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	v.fields[field] = reason
}

func (v *validator) err() error {
	if v.fields == nil {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
