// Package promptguard sanitizes outbound content before it reaches an LLM
// provider: injection-attempt detection, optional PII masking, length and
// model-parameter validation.
package promptguard

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// Pattern class codes recorded in warnings and audit detail. Codes, never
// matched payloads, are what leaves this package.
const (
	ClassOverride   = "override"
	ClassRole       = "role_manipulation"
	ClassDelimiter  = "delimiter"
	ClassStructural = "structural"
	ClassEncoded    = "encoded"
)

// Instruction-override phrasing.
var overridePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(ignore|disregard|forget|skip|bypass|override)\s+(all\s+)?(previous|above|prior|earlier|system)\s+(instructions?|rules?|context|prompts?|messages?)`),
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)(reveal|show|print|repeat|output)\s+(me\s+)?(the\s+|your\s+)?(system\s+)?(prompt|instructions?)`),
}

// Role-manipulation phrasing.
var rolePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)?\s*\w`),
	regexp.MustCompile(`(?i)act\s+(as|like)\s+(a|an|the)?\s*\w`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are|you're)\s`),
	regexp.MustCompile(`(?i)you\s+are\s+(now\s+)?a\s+different\s+(assistant|model|ai)`),
}

// Explicit role/instruction delimiters.
var delimiterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*(system|assistant|user)\s*:`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)\[\s*/?\s*(system|inst|instructions?)\s*\]`),
	regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|user|instructions?)\s*>`),
	regexp.MustCompile(`(?i)\|\s*(system|assistant|user)\s*\|`),
}

// Structural anomalies: newline floods and repeated heavy delimiters.
var structuralPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\n{5,}`),
	regexp.MustCompile(`(---|===|\*\*\*)(\s*(---|===|\*\*\*)){2,}`),
}

// base64Candidate finds runs long enough to carry a smuggled instruction.
var base64Candidate = regexp.MustCompile(`[A-Za-z0-9+/]{50,}={0,2}`)

// overrideVocabulary is matched against decoded base64 content.
var overrideVocabulary = []string{
	"ignore previous",
	"ignore all previous",
	"disregard",
	"new instructions",
	"system prompt",
	"forget everything",
	"you are now",
}

type patternClass struct {
	code     string
	patterns []*regexp.Regexp
}

var patternClasses = []patternClass{
	{ClassOverride, overridePatterns},
	{ClassRole, rolePatterns},
	{ClassDelimiter, delimiterPatterns},
	{ClassStructural, structuralPatterns},
}

// scanInjection returns the ordered set of pattern-class codes matched by
// the text, including encoded payloads that decode to override vocabulary.
func scanInjection(text string) []string {
	var matched []string
	seen := make(map[string]bool)

	for _, class := range patternClasses {
		for _, p := range class.patterns {
			if p.MatchString(text) {
				if !seen[class.code] {
					matched = append(matched, class.code)
					seen[class.code] = true
				}
				break
			}
		}
	}

	if !seen[ClassEncoded] && hasEncodedOverride(text) {
		matched = append(matched, ClassEncoded)
	}
	return matched
}

// hasEncodedOverride decodes base64-looking runs and checks the plaintext
// for instruction-override vocabulary. Decode failures are ignored; random
// high-entropy strings are not themselves suspicious.
func hasEncodedOverride(text string) bool {
	for _, candidate := range base64Candidate.FindAllString(text, 8) {
		decoded, err := base64.StdEncoding.DecodeString(candidate)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(candidate)
			if err != nil {
				continue
			}
		}
		lower := strings.ToLower(string(decoded))
		for _, phrase := range overrideVocabulary {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}

// scanDelimiters reports only the role-delimiter class; the system-prompt
// variant blocks on any hit here with no tolerance.
func scanDelimiters(text string) bool {
	for _, p := range delimiterPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
