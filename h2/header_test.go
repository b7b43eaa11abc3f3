// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

import (
	"testing"

	"github.com/joeycumines/go-reactor/errkind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_addAndLookup(t *testing.T) {
	var h Header
	require.NoError(t, h.Add("Accept", "text/html"))
	require.NoError(t, h.Add("x-trace", "a"))
	require.NoError(t, h.Add("X-Trace", "b"))

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, "text/html", h.Get("accept"))
	assert.Equal(t, "a", h.Get("X-TRACE"))
	assert.Equal(t, []string{"a", "b"}, h.Values("x-trace"))
	assert.True(t, h.Has("ACCEPT"))
	assert.False(t, h.Has("cookie"))
	assert.Equal(t, "", h.Get("cookie"))
	assert.Nil(t, h.Values("cookie"))

	require.NoError(t, h.Set("x-trace", "c"))
	assert.Equal(t, []Field{{"Accept", "text/html"}, {"x-trace", "c"}}, h.Fields())

	h.Del("accept")
	assert.Equal(t, []Field{{"x-trace", "c"}}, h.Fields())

	h.Reset()
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Fields())
}

func TestHeader_invalid(t *testing.T) {
	var h Header
	for _, tc := range []struct {
		name, value string
	}{
		{"", "v"},
		{"bad name", "v"},
		{"bad:name", "v"},
		{"ok", "bad\r\nvalue"},
		{"ok", "nul\x00"},
	} {
		err := h.Add(tc.name, tc.value)
		assert.Equal(t, errkind.InvalidParam, errkind.Of(err), "%q: %q", tc.name, tc.value)
		assert.Equal(t, errkind.InvalidParam, errkind.Of(h.Set(tc.name, tc.value)))
	}
	assert.Equal(t, 0, h.Len())
}

func TestHeader_fieldsAreCopies(t *testing.T) {
	var h Header
	src := []Field{{"a", "1"}, {"b", "2"}}
	h.SetFields(src)
	src[0].Value = "changed"
	assert.Equal(t, "1", h.Get("a"))

	out := h.Fields()
	out[1].Value = "changed"
	assert.Equal(t, "2", h.Get("b"))
}

func TestHeader_All(t *testing.T) {
	var h Header
	h.SetFields([]Field{{"a", "1"}, {"b", "2"}, {"c", "3"}})

	var names []string
	for name, value := range h.All() {
		names = append(names, name+"="+value)
		if name == "b" {
			break
		}
	}
	assert.Equal(t, []string{"a=1", "b=2"}, names)
}

func TestHeader_ContentLength(t *testing.T) {
	for _, tc := range []struct {
		value string
		n     int64
		ok    bool
	}{
		{"", 0, false},
		{"0", 0, true},
		{"1024", 1024, true},
		{" 12 ", 12, true},
		{"-1", 0, false},
		{"abc", 0, false},
	} {
		var h Header
		if tc.value != "" {
			h.SetFields([]Field{{"Content-Length", tc.value}})
		}
		n, ok := h.ContentLength()
		assert.Equal(t, tc.ok, ok, tc.value)
		assert.Equal(t, tc.n, n, tc.value)
	}
}
