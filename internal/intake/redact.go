package intake

import "regexp"

// PatternRule is one ordered redaction rule: a regex and its replacement
// template, applied with regexp.ReplaceAll semantics.
type PatternRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// defaultExclusions are file-path patterns that cause the whole observation
// to be dropped rather than redacted — the content is never stored at all.
var defaultExclusions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.env(\.|$)`),
	regexp.MustCompile(`(?i)credentials`),
	regexp.MustCompile(`(?i)secrets?\.`),
	regexp.MustCompile(`(?i)\.pem$`),
	regexp.MustCompile(`(?i)\.key$`),
	regexp.MustCompile(`(?i)id_rsa`),
}

// defaultPatterns is the ordered list of content redaction rules. Order
// matters: specific patterns (private keys, JWTs, vendor key formats) run
// before the generic NAME=value catch-all so a vendor key isn't also
// partially matched by the looser rule first.
var defaultPatterns = []PatternRule{
	{
		Pattern:     regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
		Replacement: "[REDACTED:private_key]",
	},
	{
		Pattern:     regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		Replacement: "[REDACTED:jwt]",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis)://[^\s"']+`),
		Replacement: "[REDACTED:connection_string]",
	},
	{
		Pattern:     regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
		Replacement: "[REDACTED:api_key]",
	},
	{
		Pattern:     regexp.MustCompile(`\bghp_[A-Za-z0-9]{30,}\b`),
		Replacement: "[REDACTED:api_key]",
	},
	{
		Pattern:     regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
		Replacement: "[REDACTED:api_key]",
	},
	{
		// The value group excludes a leading '[' so this never re-matches a
		// placeholder a more specific rule already substituted above.
		Pattern:     regexp.MustCompile(`\b([A-Z][A-Z0-9_]{2,})=([^\s\[]\S{7,})`),
		Replacement: "${1}=[REDACTED:env]",
	},
}

// Redactor holds the default pattern/exclusion lists plus any user-supplied
// additions, read once per process from config.json.
type Redactor struct {
	exclusions []*regexp.Regexp
	patterns   []PatternRule
}

// NewRedactor builds a redactor from the defaults plus user-supplied
// additional patterns and excluded-file regexes, appended after the
// defaults so specific rules always run before general ones.
func NewRedactor(additionalPatterns []PatternRule, additionalExclusions []string) *Redactor {
	r := &Redactor{
		exclusions: append([]*regexp.Regexp{}, defaultExclusions...),
		patterns:   append([]PatternRule{}, defaultPatterns...),
	}
	r.patterns = append(r.patterns, additionalPatterns...)
	for _, pat := range additionalExclusions {
		if re, err := regexp.Compile(pat); err == nil {
			r.exclusions = append(r.exclusions, re)
		}
	}
	return r
}

// IsExcludedFile reports whether a file path matches the exclusion list,
// meaning the observation must be dropped entirely rather than redacted.
func (r *Redactor) IsExcludedFile(path string) bool {
	if path == "" {
		return false
	}
	for _, re := range r.exclusions {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Redact applies every pattern in order to content, returning the redacted
// text.
func (r *Redactor) Redact(content string) string {
	for _, p := range r.patterns {
		content = p.Pattern.ReplaceAllString(content, p.Replacement)
	}
	return content
}
