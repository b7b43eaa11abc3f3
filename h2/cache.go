// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

import (
	"net"
	"net/url"
	"strings"
)

// CacheEntry is a response held by a [CacheGateway].
type CacheEntry struct {
	Header []Field
	Body   []byte
	Status int
}

// CacheGateway is the read side of a response cache. Population and
// eviction are the gateway's concern.
type CacheGateway interface {
	// IsCacheable reports whether a request with the given method and
	// outgoing header fields may be served from the cache.
	IsCacheable(method string, fields []Field) bool
	// GetCache returns the entry for key, as built by [CacheKey].
	GetCache(key string) (CacheEntry, bool)
}

// CacheKey returns the cache key for a request: the upper-cased method and
// the canonical target, separated by a space.
//
// The target is canonicalized by lower-casing the scheme and host, removing
// the scheme's default port, mapping an empty path to "/", and dropping any
// fragment. Targets that do not parse as URLs are used verbatim.
func CacheKey(method, target string) string {
	return strings.ToUpper(method) + " " + canonicalTarget(target)
}

func canonicalTarget(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Opaque != "" {
		return target
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Host != "" {
		host, port := strings.ToLower(u.Hostname()), u.Port()
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			port = ""
		}
		if port != "" {
			u.Host = net.JoinHostPort(host, port)
		} else if strings.Contains(host, ":") {
			u.Host = "[" + host + "]"
		} else {
			u.Host = host
		}
		if u.Path == "" && u.RawPath == "" {
			u.Path = "/"
		}
	}
	return u.String()
}
