// Package redact masks secrets in text before it is written to the
// execution journals.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies the category of sensitive data.
type PatternType string

const (
	PatternCred  PatternType = "CRED"
	PatternEmail PatternType = "EMAIL"
	PatternIP    PatternType = "IP"
)

// Match is a single occurrence of sensitive data in text.
type Match struct {
	Type  PatternType
	Value string
	Start int
	End   int
}

var (
	// key=value or key: value pairs where the key suggests a secret.
	credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key|apikey|auth)[ \t]*[=:][ \t]*\S+)`)

	// Authorization header values.
	bearerRe = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)

	emailRe = regexp.MustCompile(`\b([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})\b`)

	// IPv4 addresses (4 octets, no range validation).
	ipv4Re = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)
)

// safeIPs are addresses that carry no information about the host.
var safeIPs = map[string]bool{
	"127.0.0.1":       true,
	"0.0.0.0":         true,
	"255.255.255.255": true,
}

// Scan finds sensitive values in text, deduplicated and sorted by position.
// Overlapping matches keep the earliest one.
func Scan(text string) []Match {
	var matches []Match
	add := func(typ PatternType, re *regexp.Regexp, skip func(string) bool) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			v := strings.TrimRight(text[loc[0]:loc[1]], ".,;\"'`)}]")
			if v == "" || (skip != nil && skip(v)) {
				continue
			}
			matches = append(matches, Match{Type: typ, Value: v, Start: loc[0], End: loc[0] + len(v)})
		}
	}
	add(PatternCred, credKVRe, nil)
	add(PatternCred, bearerRe, nil)
	add(PatternEmail, emailRe, nil)
	add(PatternIP, ipv4Re, func(v string) bool { return safeIPs[v] })

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	out := matches[:0]
	end := -1
	for _, m := range matches {
		if m.Start < end {
			continue
		}
		out = append(out, m)
		end = m.End
	}
	return out
}

// String replaces every match in text with a numbered token such as
// <<CRED_1>>. Repeated values share a token.
func String(text string) string {
	matches := Scan(text)
	if len(matches) == 0 {
		return text
	}

	tokens := make(map[string]string)
	counters := make(map[PatternType]int)
	var b strings.Builder
	prev := 0
	for _, m := range matches {
		tok, ok := tokens[m.Value]
		if !ok {
			counters[m.Type]++
			tok = fmt.Sprintf("<<%s_%d>>", m.Type, counters[m.Type])
			tokens[m.Value] = tok
		}
		b.WriteString(text[prev:m.Start])
		b.WriteString(tok)
		prev = m.End
	}
	b.WriteString(text[prev:])
	return b.String()
}
