// Package redact scrubs well-known credential shapes from text that is
// about to leave the machine, such as annotation messages written to a CI
// job log.
package redact

import "regexp"

// Applied names the rules that matched, for diagnostic logging.
type Applied struct {
	Names []string
}

type rule struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// Rules must be bounded and default-safe: a miss costs one scan, a false
// positive only hides a string that looked like a credential.
var rules = []rule{
	{"github_token", regexp.MustCompile(`\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{10,}\b`), "[REDACTED:GITHUB_TOKEN]"},
	{"github_token", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`), "[REDACTED:GITHUB_TOKEN]"},
	{"openai_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{10,}\b`), "[REDACTED:OPENAI_KEY]"},
	{"slack_token", regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}\b`), "[REDACTED:SLACK_TOKEN]"},
	{"aws_access_key_id", regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), "[REDACTED:AWS_ACCESS_KEY_ID]"},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`), "[REDACTED:JWT]"},
	{"bearer_token", regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/-]{16,}=*`), "Bearer [REDACTED:BEARER_TOKEN]"},
	{"private_key", regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED:PRIVATE_KEY]"},
}

// Text replaces every recognized credential in s and reports which rules
// fired. The input is returned unchanged when nothing matches.
func Text(s string) (string, Applied) {
	applied := Applied{}
	out := s
	for _, r := range rules {
		if !r.re.MatchString(out) {
			continue
		}
		out = r.re.ReplaceAllString(out, r.replacement)
		applied.Names = append(applied.Names, r.name)
	}
	return out, applied
}
