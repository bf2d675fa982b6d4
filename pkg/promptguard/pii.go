// pkg/promptguard/pii.go

package promptguard

import (
	"regexp"
	"strings"
)

// PII entity codes.
const (
	PIIEmail = "email"
	PIIPhone = "phone"
	PIIGovID = "government_id"
	PIICard  = "payment_card"
	PIIIPv4  = "ipv4"
)

type piiEntity struct {
	code    string
	pattern *regexp.Regexp
	// verify rejects matches the regex alone cannot disambiguate.
	verify func(string) bool
}

var piiEntities = []piiEntity{
	{PIIEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), nil},
	{PIICard, regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`), luhnValid},
	{PIIGovID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), nil},
	{PIIPhone, regexp.MustCompile(`\+?\d{1,3}[ .\-]?\(?\d{2,4}\)?[ .\-]?\d{3,4}[ .\-]?\d{3,4}\b`), nil},
	{PIIIPv4, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), validIPv4},
}

// detectPII returns entity codes found, in entity priority order.
func detectPII(text string) []string {
	var found []string
	for _, entity := range piiEntities {
		for _, match := range entity.pattern.FindAllString(text, -1) {
			if entity.verify != nil && !entity.verify(match) {
				continue
			}
			found = append(found, entity.code)
			break
		}
	}
	return found
}

// maskPII replaces each detected value, preserving the first and last two
// characters for readability. Whether this partial reveal satisfies a given
// regulatory regime is a policy decision for the host; full redaction means
// not echoing the content at all.
func maskPII(text string) string {
	for _, entity := range piiEntities {
		text = entity.pattern.ReplaceAllStringFunc(text, func(match string) string {
			if entity.verify != nil && !entity.verify(match) {
				return match
			}
			return maskValue(match)
		})
	}
	return text
}

// maskValue keeps the first and last two characters of values longer than
// four characters; shorter values are fully masked.
func maskValue(value string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

// luhnValid filters payment-card candidates to digit groups that pass the
// Luhn checksum, cutting false positives from arbitrary long numbers.
func luhnValid(candidate string) bool {
	var digits []int
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validIPv4(candidate string) bool {
	parts := strings.Split(candidate, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if len(part) > 1 && part[0] == '0' {
			return false
		}
		n := 0
		for _, r := range part {
			n = n*10 + int(r-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}
