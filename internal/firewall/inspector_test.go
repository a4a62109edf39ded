package firewall_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bastionsec/bastion/internal/firewall"
	"github.com/stretchr/testify/assert"
)

func newRequestWithCookie(name, value string) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: name, Value: value})
	return req
}

func inspectQuery(query string) (string, bool) {
	return firewall.NewInspector().Inspect(firewall.Surfaces{Query: query})
}

func TestInspect_SQLInjection(t *testing.T) {
	cases := []struct {
		name  string
		value string
		rule  string
	}{
		{"union select", "id=1 UNION SELECT username, password FROM users", "sqli_union_select"},
		{"comment terminator", "name=admin'--", "sqli_comment_terminator"},
		{"boolean tautology", "id=1' OR '1'='1", "sqli_boolean_tautology"},
		{"stacked drop", "id=1; DROP TABLE users", "sqli_stacked_query"},
		{"time based", "id=1 AND SLEEP(5)", "sqli_time_based"},
		{"information schema", "q=1 and information_schema.tables", "sqli_information_schema"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, matched := inspectQuery(tc.value)
			assert.True(t, matched)
			assert.Equal(t, tc.rule, rule)
		})
	}
}

func TestInspect_XSS(t *testing.T) {
	cases := []struct {
		name  string
		value string
		rule  string
	}{
		{"script tag", "comment=<script>alert(1)</script>", "xss_script_tag"},
		{"event handler", `img=<img src=x onerror=alert(1)>`, "xss_event_handler"},
		{"javascript uri", "link=javascript:alert(document.cookie)", "xss_javascript_uri"},
		{"iframe", "content=<iframe src=//evil.example></iframe>", "xss_dangerous_tag"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, matched := inspectQuery(tc.value)
			assert.True(t, matched)
			assert.Equal(t, tc.rule, rule)
		})
	}
}

func TestInspect_PathTraversal(t *testing.T) {
	rule, matched := firewall.NewInspector().Inspect(firewall.Surfaces{
		Path: "/files/../../etc/passwd",
	})
	assert.True(t, matched)
	assert.Equal(t, "traversal_dotdot", rule)
}

func TestInspect_CommandInjection(t *testing.T) {
	rule, matched := inspectQuery("host=localhost; cat config.txt")
	assert.True(t, matched)
	assert.Equal(t, "cmd_shell_metachar", rule)
}

func TestInspect_URLEncodedPayloadMatches(t *testing.T) {
	// %3Cscript%3E decodes to <script>; the raw value does not match but the
	// decoded variant must
	encoded := url.QueryEscape("<script>alert(1)</script>")
	rule, matched := firewall.NewInspector().Inspect(firewall.Surfaces{
		Fields: url.Values{"comment": {encoded}},
	})
	assert.True(t, matched)
	assert.Equal(t, "xss_script_tag", rule)
}

func TestInspect_EncodedTraversal(t *testing.T) {
	rule, matched := firewall.NewInspector().Inspect(firewall.Surfaces{
		Path: "/files/%2e%2e%2f%2e%2e%2fetc/passwd",
	})
	assert.True(t, matched)
	assert.NotEmpty(t, rule)
}

func TestInspect_JSONBodyValues(t *testing.T) {
	rule, matched := firewall.NewInspector().Inspect(firewall.Surfaces{
		JSON: map[string]interface{}{
			"profile": map[string]interface{}{
				"bio": "1' OR '1'='1",
			},
		},
	})
	assert.True(t, matched)
	assert.Equal(t, "sqli_boolean_tautology", rule)
}

func TestInspect_CookieValues(t *testing.T) {
	req := newRequestWithCookie("session", "1UNION/**/SELECT(password)")
	rule, matched := firewall.NewInspector().Inspect(firewall.SurfacesFromRequest(req))
	assert.True(t, matched)
	assert.Equal(t, "sqli_union_select", rule)
}

func TestInspect_CleanRequests(t *testing.T) {
	cases := []firewall.Surfaces{
		{Path: "/v1/login/precheck"},
		{Query: "page=2&limit=50"},
		{Fields: url.Values{"name": {"O'Brien"}, "city": {"Dublin"}}},
		{JSON: map[string]interface{}{"identity": "alice", "success": true}},
		{Query: "q=select a nice union of sets"},
	}

	for _, s := range cases {
		rule, matched := firewall.NewInspector().Inspect(s)
		assert.False(t, matched, "unexpected match: %s", rule)
	}
}

func TestInspect_FirstMatchWins(t *testing.T) {
	// Payload matching both a SQLi and an XSS rule reports the earlier
	// catalogue entry
	rule, matched := inspectQuery("q=1 UNION SELECT x<script>alert(1)</script>")
	assert.True(t, matched)
	assert.Equal(t, "sqli_union_select", rule)
}

func TestCatalogue_OrderedByFamily(t *testing.T) {
	rules := firewall.Catalogue()
	assert.NotEmpty(t, rules)

	lastFamily := firewall.FamilySQLInjection
	for _, r := range rules {
		assert.GreaterOrEqual(t, int(r.Family), int(lastFamily), "catalogue families out of order at %s", r.Name)
		lastFamily = r.Family
	}
}
