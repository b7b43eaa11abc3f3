// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/joeycumines/go-reactor/errkind"
	"golang.org/x/net/http/httpguts"
)

// Field is a single header field.
type Field struct {
	Name  string
	Value string
}

// HeaderReader is the read-only view of a [Header].
type HeaderReader interface {
	Get(name string) string
	Values(name string) []string
	Has(name string) bool
	Fields() []Field
	All() iter.Seq2[string, string]
	Len() int
	ContentLength() (int64, bool)
}

var _ HeaderReader = (*Header)(nil)

// Header is an ordered collection of header fields. Duplicate names are
// permitted, and order is preserved. Names are matched case-insensitively.
// The zero value is an empty header.
type Header struct {
	fields []Field
}

// Add appends a field, after validating the name and value.
func (h *Header) Add(name, value string) error {
	if err := validField(name, value); err != nil {
		return err
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
	return nil
}

// Set replaces all fields with the given name, with a single field.
func (h *Header) Set(name, value string) error {
	if err := validField(name, value); err != nil {
		return err
	}
	h.Del(name)
	h.fields = append(h.fields, Field{Name: name, Value: value})
	return nil
}

// Get returns the value of the first field with the given name, or "".
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns the values of every field with the given name, in order.
func (h *Header) Values(name string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Has reports whether at least one field has the given name.
func (h *Header) Has(name string) bool {
	return slices.ContainsFunc(h.fields, func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})
}

// Del removes every field with the given name.
func (h *Header) Del(name string) {
	h.fields = slices.DeleteFunc(h.fields, func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})
}

// Fields returns a copy of the fields, in order, or nil if there are none.
func (h *Header) Fields() []Field {
	if len(h.fields) == 0 {
		return nil
	}
	return slices.Clone(h.fields)
}

// SetFields replaces the contents with a copy of fields. The fields are
// trusted, and are not validated.
func (h *Header) SetFields(fields []Field) {
	h.fields = append(h.fields[:0], fields...)
}

// All iterates over every field, in order.
func (h *Header) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, f := range h.fields {
			if !yield(f.Name, f.Value) {
				return
			}
		}
	}
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// ContentLength parses the first content-length field, returning false if
// it is missing or invalid.
func (h *Header) ContentLength() (int64, bool) {
	v := h.Get("content-length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Reset removes every field.
func (h *Header) Reset() {
	clear(h.fields)
	h.fields = h.fields[:0]
}

func validField(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return errkind.New(errkind.InvalidParam, "h2: invalid header field name "+strconv.Quote(name), nil)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return errkind.New(errkind.InvalidParam, "h2: invalid header field value for "+name, nil)
	}
	return nil
}
