package proxy

import (
	"strconv"
	"strings"

	"verge-hq/verge/pkg/store"
)

// RewritePath translates a client-facing path into the backend namespace for
// a mapping: the front URI prefix is stripped, the back URI prefix is
// prepended, runs of slashes are collapsed, and the result always starts
// with a single '/'.
func RewritePath(path string, m *store.Mapping) string {
	result := path

	if m.FrontURI != "" {
		front := "/" + m.FrontURI
		if strings.HasPrefix(result, front) {
			result = result[len(front):]
		}
	}

	if m.BackURI != "" {
		result = "/" + m.BackURI + result
	}

	for strings.Contains(result, "//") {
		result = strings.ReplaceAll(result, "//", "/")
	}

	if !strings.HasPrefix(result, "/") {
		result = "/" + result
	}

	return result
}

// BuildBackendURL constructs the full backend URL for a request. The base is
// the mapping's backend (http://localhost when absent) with the mapping's
// port appended, even when the backend base already encodes one. Rows that
// point at external services rely on this exact construction.
func BuildBackendURL(m *store.Mapping, path, query string) string {
	base := m.Backend
	if base == "" {
		base = "http://localhost"
	}

	url := base + ":" + strconv.Itoa(m.BackPort) + RewritePath(path, m)
	if query != "" {
		url += "?" + query
	}
	return url
}
