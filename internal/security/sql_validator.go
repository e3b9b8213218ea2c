package security

import (
	"regexp"
	"strings"
)

var sqlDangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*\S`), // more than one statement
	regexp.MustCompile(`(?i)\bUNION\s+SELECT\b`),
	regexp.MustCompile(`(?i)\bread_(csv|csv_auto|parquet|json|json_auto|text|blob)\s*\(`),
	regexp.MustCompile(`(?i)\b(LOAD|INSTALL)\s+\w+`),
	regexp.MustCompile(`(?i)\bpg_(sleep|read_file|ls_dir)\s*\(`),
	regexp.MustCompile(`(?i)\bSLEEP\s*\(`),
	regexp.MustCompile(`'.*--`),
	regexp.MustCompile(`;\s*--`),
	regexp.MustCompile(`/\*.*?\*/`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)\bor\s+'1'\s*=\s*'1'`),
}

// SQLValidator checks generated SQL before it is returned or executed. It
// accepts a single read-only SELECT/WITH statement and rejects any of the
// engine's forbidden operations.
type SQLValidator struct {
	forbidden []*regexp.Regexp
	names     []string
}

// NewSQLValidator compiles word-bounded matchers for the forbidden keywords.
func NewSQLValidator(forbidden []string) *SQLValidator {
	v := &SQLValidator{}
	for _, op := range forbidden {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		v.forbidden = append(v.forbidden, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(op)+`\b`))
		v.names = append(v.names, strings.ToUpper(op))
	}
	return v
}

// Validate returns an error string if SQL is invalid, or empty string if OK
func (v *SQLValidator) Validate(sql string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if trimmed == "" {
		return "SQL cannot be empty"
	}

	upperSQL := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upperSQL, "SELECT") && !strings.HasPrefix(upperSQL, "WITH") {
		return "only SELECT queries are allowed"
	}

	for _, pattern := range sqlDangerousPatterns {
		if pattern.MatchString(trimmed) {
			return "SQL injection pattern detected: " + pattern.String()
		}
	}

	for i, re := range v.forbidden {
		if re.MatchString(stripStrings(trimmed)) {
			return "forbidden operation: " + v.names[i]
		}
	}

	return ""
}

var reStringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)

// stripStrings blanks quoted literals so item names like 'Update pack'
// do not trip the keyword check.
func stripStrings(sql string) string {
	return reStringLiteral.ReplaceAllString(sql, "''")
}
