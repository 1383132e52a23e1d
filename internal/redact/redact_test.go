package redact

import (
	"strings"
	"testing"
)

func TestScanCredentials(t *testing.T) {
	text := `dial failed: password=hunter2 token: abc123 Authorization: Bearer eyJhbGciOi.xyz`
	matches := Scan(text)

	creds := filterByType(matches, PatternCred)
	if len(creds) != 3 {
		t.Fatalf("expected 3 credentials, got %d: %v", len(creds), creds)
	}
	if creds[0].Value != "password=hunter2" {
		t.Errorf("first credential = %q", creds[0].Value)
	}
}

func TestScanIPv4(t *testing.T) {
	text := "connect 192.168.1.42:443 and 10.0.0.1 via 127.0.0.1"
	ips := filterByType(Scan(text), PatternIP)

	// 127.0.0.1 is a safe IP and should be excluded.
	if len(ips) != 2 {
		t.Errorf("expected 2 IPs, got %d: %v", len(ips), ips)
	}
}

func TestScanEmail(t *testing.T) {
	emails := filterByType(Scan("owner admin@corp.internal.com notified"), PatternEmail)
	if len(emails) != 1 || emails[0].Value != "admin@corp.internal.com" {
		t.Errorf("unexpected emails %v", emails)
	}
}

func TestScanNoOverlap(t *testing.T) {
	// The credential value contains an IP; only the credential is reported.
	matches := Scan("auth=10.1.2.3")
	if len(matches) != 1 || matches[0].Type != PatternCred {
		t.Errorf("expected one credential match, got %v", matches)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "undefined: foo", "undefined: foo"},
		{"cred", "runtime fault: bad password=hunter2", "runtime fault: bad <<CRED_1>>"},
		{"repeat", "10.0.0.5 refused, retry 10.0.0.5", "<<IP_1>> refused, retry <<IP_1>>"},
		{"mixed", "mail bob@corp.io from 10.0.0.5", "mail <<EMAIL_1>> from <<IP_1>>"},
		{"trailing punctuation", "secret=abc.", "<<CRED_1>>."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(tt.in); got != tt.want {
				t.Errorf("String(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStringKeepsCompileErrors(t *testing.T) {
	msg := "snippet.go:3:9: cannot use x (variable of type int) as string value in return statement"
	if got := String(msg); got != msg {
		t.Errorf("compile error was altered: %q", got)
	}
	if strings.Contains(String("token=s3cr3t"), "s3cr3t") {
		t.Error("secret leaked")
	}
}

func filterByType(matches []Match, typ PatternType) []Match {
	var out []Match
	for _, m := range matches {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
