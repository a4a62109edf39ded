package firewall

import (
	"net/http"
	"net/url"
	"strings"
)

// Surfaces is the full set of request inputs the inspector evaluates: path,
// raw query string, parsed form fields (possibly nested), and cookies.
type Surfaces struct {
	Path    string
	Query   string
	Fields  url.Values
	JSON    map[string]interface{} // decoded JSON body, if any
	Cookies []*http.Cookie
}

// Inspector is the stateless pattern-matching engine. Safe for concurrent
// use; all state is the immutable compiled catalogue.
type Inspector struct {
	rules []Rule
}

// NewInspector creates an Inspector over the default signature catalogue
func NewInspector() *Inspector {
	return &Inspector{rules: Catalogue()}
}

// Inspect evaluates every string value across the request surfaces, raw and
// URL-decoded, against the ordered catalogue. It returns the name of the
// first matching rule, or ("", false) when the request is clean.
func (i *Inspector) Inspect(s Surfaces) (string, bool) {
	values := collectValues(s)

	for _, rule := range i.rules {
		for _, v := range values {
			if rule.Pattern.MatchString(v) {
				return rule.Name, true
			}
			if decoded, err := url.QueryUnescape(v); err == nil && decoded != v {
				if rule.Pattern.MatchString(decoded) {
					return rule.Name, true
				}
			}
		}
	}

	return "", false
}

// SurfacesFromRequest extracts the inspectable surfaces from an HTTP
// request. The caller is responsible for having parsed the form body
// beforehand (ParseForm / ParseMultipartForm) so the body is not consumed
// twice.
func SurfacesFromRequest(r *http.Request) Surfaces {
	s := Surfaces{
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Cookies: r.Cookies(),
	}
	if r.Form != nil {
		s.Fields = r.Form
	}
	return s
}

func collectValues(s Surfaces) []string {
	values := make([]string, 0, 8)

	if s.Path != "" {
		values = append(values, s.Path)
	}
	if s.Query != "" {
		values = append(values, s.Query)
	}

	for key, vs := range s.Fields {
		values = append(values, key)
		values = append(values, vs...)
	}

	for _, c := range s.Cookies {
		values = append(values, c.Name, c.Value)
	}

	values = appendJSONValues(values, s.JSON)

	return values
}

// appendJSONValues walks nested maps and lists, flattening every string leaf
// and key into the inspectable value set
func appendJSONValues(values []string, node interface{}) []string {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			values = append(values, key)
			values = appendJSONValues(values, child)
		}
	case []interface{}:
		for _, child := range v {
			values = appendJSONValues(values, child)
		}
	case string:
		if strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}
	return values
}
