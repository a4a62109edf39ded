package firewall

import "regexp"

// RuleFamily identifies the attack family a signature belongs to
type RuleFamily int

const (
	FamilySQLInjection RuleFamily = iota
	FamilyXSS
	FamilyPathTraversal
	FamilyCommandInjection
)

func (f RuleFamily) String() string {
	switch f {
	case FamilySQLInjection:
		return "sql_injection"
	case FamilyXSS:
		return "xss"
	case FamilyPathTraversal:
		return "path_traversal"
	case FamilyCommandInjection:
		return "command_injection"
	}
	return "unknown"
}

// Rule is one named signature. Name is what gets reported when the rule is
// the first to match; the catalogue order below is therefore load-bearing
// for reporting, though any match blocks.
type Rule struct {
	Name    string
	Family  RuleFamily
	Pattern *regexp.Regexp
}

// Synthetic rule names for the config-gated layered checks, which run before
// signature matching and short-circuit it.
const (
	RuleRateLimitExceeded = "rate_limit_exceeded"
	RuleBlockedCountry    = "blocked_country"
)

// Catalogue returns the ordered signature catalogue. Patterns are compiled
// once at package init via the package-level defaultCatalogue.
func Catalogue() []Rule {
	return defaultCatalogue
}

var defaultCatalogue = []Rule{
	// SQL injection
	{"sqli_union_select", FamilySQLInjection, regexp.MustCompile(`(?i)union[\s/\*]+(all[\s/\*]+)?select`)},
	{"sqli_comment_terminator", FamilySQLInjection, regexp.MustCompile(`(?i)('|")\s*(--|#|/\*)`)},
	{"sqli_boolean_tautology", FamilySQLInjection, regexp.MustCompile(`(?i)('|")\s*(or|and)\s+('|")?\d+('|")?\s*=\s*('|")?\d+`)},
	{"sqli_stacked_query", FamilySQLInjection, regexp.MustCompile(`(?i);\s*(select|insert|update|delete|drop|truncate|alter|create)\b`)},
	{"sqli_keyword_probe", FamilySQLInjection, regexp.MustCompile(`(?i)\b(select\s+.{0,40}\bfrom|insert\s+into|delete\s+from|drop\s+(table|database)|update\s+\w+\s+set)\b`)},
	{"sqli_time_based", FamilySQLInjection, regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep|waitfor\s+delay)\s*\(`)},
	{"sqli_information_schema", FamilySQLInjection, regexp.MustCompile(`(?i)\binformation_schema\b|\bload_file\s*\(|\binto\s+(out|dump)file\b`)},

	// Cross-site scripting
	{"xss_script_tag", FamilyXSS, regexp.MustCompile(`(?i)<\s*/?\s*script[^a-z]`)},
	{"xss_event_handler", FamilyXSS, regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|blur|submit|input|pointerover)\s*=`)},
	{"xss_javascript_uri", FamilyXSS, regexp.MustCompile(`(?i)javascript\s*:`)},
	{"xss_dangerous_tag", FamilyXSS, regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg|img|body|form)[^>]*\b(src|onerror|onload|action|formaction)\s*=`)},
	{"xss_expression_eval", FamilyXSS, regexp.MustCompile(`(?i)\b(eval|settimeout|setinterval|document\.cookie|document\.write|window\.location)\s*[(.=]`)},
	{"xss_data_uri_html", FamilyXSS, regexp.MustCompile(`(?i)data\s*:\s*text/html`)},

	// Path traversal
	{"traversal_dotdot", FamilyPathTraversal, regexp.MustCompile(`\.\./|\.\.\\`)},
	{"traversal_encoded_dotdot", FamilyPathTraversal, regexp.MustCompile(`(?i)(%2e%2e|\.%2e|%2e\.)(/|%2f|\\|%5c)`)},
	{"traversal_sensitive_file", FamilyPathTraversal, regexp.MustCompile(`(?i)/etc/(passwd|shadow|hosts)\b|boot\.ini|win\.ini|\.htaccess`)},
	{"traversal_null_byte", FamilyPathTraversal, regexp.MustCompile(`%00|\x00`)},
	{"traversal_stream_wrapper", FamilyPathTraversal, regexp.MustCompile(`(?i)\b(phar|zip|expect|file|glob)://`)},

	// Command injection
	{"cmd_shell_metachar", FamilyCommandInjection, regexp.MustCompile("(?i)[;&|`]\\s*(cat|ls|id|whoami|uname|wget|curl|nc|bash|sh|cmd|powershell)\\b")},
	{"cmd_substitution", FamilyCommandInjection, regexp.MustCompile(`\$\([^)]*\)|\$\{[^}]*\}` + "|`[^`]+`")},
	{"cmd_exec_function", FamilyCommandInjection, regexp.MustCompile(`(?i)\b(exec|system|passthru|popen|proc_open|shell_exec)\s*\(`)},
	{"cmd_chained_binary", FamilyCommandInjection, regexp.MustCompile(`(?i)\b(/bin/(ba)?sh|/usr/bin/perl|python\d?\s+-c)\b`)},
}
