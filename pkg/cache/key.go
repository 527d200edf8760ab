package cache

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response inside a bucket.
type Key struct {
	// Method is the request method (only GET is ever stored)
	Method string

	// Path is the request path (e.g., "/assets/app.js")
	Path string

	// Query holds the query parameters (e.g., {"v": "3"})
	Query url.Values
}

// KeyFromRequest builds the cache key for an incoming request.
// Query parameter order does not affect the key.
func KeyFromRequest(req *http.Request) Key {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return Key{
		Method: method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
	}
}

// KeyForPath builds a GET key from a path that may carry a query string,
// as found in shell asset lists.
func KeyForPath(raw string) (Key, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Key{}, err
	}
	return Key{
		Method: http.MethodGet,
		Path:   u.Path,
		Query:  u.Query(),
	}, nil
}

// String generates a deterministic key string.
// Format: METHOD /path?param1=val1&param2=val2
//
// Example:
//
//	GET /assets/app.js?v=3
func (k Key) String() string {
	var b strings.Builder

	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}
	b.WriteString(method)
	b.WriteByte(' ')

	path := k.Path
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	// Add query params (sorted for determinism)
	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		sep := byte('?')
		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			for _, value := range values {
				b.WriteByte(sep)
				b.WriteString(url.QueryEscape(name))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(value))
				sep = '&'
			}
		}
	}

	return b.String()
}
