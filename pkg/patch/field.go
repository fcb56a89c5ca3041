// Package patch carries partial-update fields that distinguish an absent value
// from an explicit null.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one optional, nullable update value.
//
//	absent key    -> Set == false
//	"key": null   -> Set == true, Value == nil
//	"key": value  -> Set == true, Value != nil
type Field[T any] struct {
	Set   bool
	Value *T
}

// Some returns a field set to v
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: &v}
}

// Null returns a field explicitly set to null
func Null[T any]() Field[T] {
	return Field[T]{Set: true}
}

// IsNull reports whether the field was explicitly set to null
func (f Field[T]) IsNull() bool {
	return f.Set && f.Value == nil
}

// Get returns the value and whether a non-null value is present
func (f Field[T]) Get() (T, bool) {
	if f.Value == nil {
		var zero T
		return zero, false
	}
	return *f.Value, true
}

// SQLValue returns the value to bind for this field; nil binds NULL
func (f Field[T]) SQLValue() interface{} {
	if f.Value == nil {
		return nil
	}
	return *f.Value
}

// UnmarshalJSON is only invoked when the key is present, which is what marks Set
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	f.Value = &v
	return nil
}

// MarshalJSON writes null for unset or null fields
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}

// Builder accumulates SET clauses for a dynamic UPDATE statement
type Builder struct {
	clauses []string
	args    []interface{}
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends "column = $n" bound to value
func (b *Builder) Add(column string, value interface{}) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// AddRaw appends a clause that binds no argument, e.g. "updated_at = NOW()"
func (b *Builder) AddRaw(clause string) {
	b.clauses = append(b.clauses, clause)
}

// Arg appends an argument outside the SET list and returns its placeholder
func (b *Builder) Arg(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// Clauses returns the accumulated SET clauses
func (b *Builder) Clauses() []string {
	return b.clauses
}

// Args returns the bound arguments in placeholder order
func (b *Builder) Args() []interface{} {
	return b.args
}

// Len returns the number of bound arguments
func (b *Builder) Len() int {
	return len(b.args)
}

// Apply adds column to b when the field is present
func Apply[T any](b *Builder, column string, f Field[T]) {
	if f.Set {
		b.Add(column, f.SQLValue())
	}
}
