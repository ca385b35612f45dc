// Package iocscan mines text archive members for indicators of compromise
// (domains, email addresses, IPv4 addresses) line by line. The scanner is
// pure with respect to I/O: it produces records, it never persists them.
package iocscan

import (
	"bufio"
	"io"
	"net/netip"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/archive"
)

// IndicatorType enumerates the kinds of IOC this scanner recognizes.
type IndicatorType string

const (
	IndicatorDomain IndicatorType = "domain"
	IndicatorEmail  IndicatorType = "email"
	IndicatorIPv4   IndicatorType = "ipv4"
)

// Indicator is one IOC found on one line of one archive member, with
// enough provenance to trace it back to the byte it came from.
type Indicator struct {
	Type         IndicatorType
	Value        string
	RelativePath string
	Line         int
}

// maxLineBytes bounds memory for pathological inputs: lines longer than
// this are truncated before matching, a counter is incremented, and
// scanning continues rather than failing the job.
const maxLineBytes = 64 * 1024

var (
	hostnameToken = regexp.MustCompile(`[a-zA-Z0-9](?:[a-zA-Z0-9\-\.]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9\-]*[a-zA-Z0-9])?)+`)
	emailToken    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	ipv4Token     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Matchers holds the compiled pattern sets built once from configuration.
// A single Matchers is shared read-only across every worker goroutine, so
// it carries no per-call mutable state; ScanText returns call-local counts
// instead of accumulating them on the struct.
type Matchers struct {
	domainSuffixes []string
	emailSuffixes  []string
	cidrs          []netip.Prefix
}

// NewMatchers compiles the pattern sets from the configured suffix lists
// and CIDR ranges.
func NewMatchers(domainSuffixes, emailSuffixes []string, cidrs []netip.Prefix) *Matchers {
	return &Matchers{
		domainSuffixes: lowerAll(domainSuffixes),
		emailSuffixes:  lowerAll(emailSuffixes),
		cidrs:          cidrs,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// ScanText scans one text member line by line, reading via r and tagging
// every emitted Indicator with relativePath for provenance. The second
// return value is the number of lines truncated for exceeding
// maxLineBytes during this call only — callers running ScanText
// concurrently across workers each get their own count.
func (m *Matchers) ScanText(relativePath string, r io.Reader) ([]Indicator, int) {
	var out []Indicator
	truncatedLines := 0

	reader := bufio.NewReaderSize(r, maxLineBytes)

	line := 0
	for {
		raw, isPrefix, err := reader.ReadLine()
		if err != nil {
			// io.EOF or any other read error simply ends the scan early —
			// the scanner must never fail the job outright.
			break
		}
		line++
		text := toValidUTF8(raw)
		if isPrefix {
			// Keep the first maxLineBytes and discard the rest of the line.
			truncatedLines++
			for isPrefix && err == nil {
				_, isPrefix, err = reader.ReadLine()
			}
		}

		out = append(out, m.matchDomains(text, relativePath, line)...)
		out = append(out, m.matchEmails(text, relativePath, line)...)
		out = append(out, m.matchIPv4(text, relativePath, line)...)
	}

	return out, truncatedLines
}

func (m *Matchers) matchDomains(line, relPath string, lineNo int) []Indicator {
	if len(m.domainSuffixes) == 0 {
		return nil
	}
	var out []Indicator
	for _, host := range hostnameToken.FindAllString(line, -1) {
		lower := strings.ToLower(host)
		for _, suffix := range m.domainSuffixes {
			if strings.HasSuffix(lower, suffix) && isValidHostname(lower) {
				out = append(out, Indicator{Type: IndicatorDomain, Value: lower, RelativePath: relPath, Line: lineNo})
				break
			}
		}
	}
	return out
}

func (m *Matchers) matchEmails(line, relPath string, lineNo int) []Indicator {
	if len(m.emailSuffixes) == 0 {
		return nil
	}
	var out []Indicator
	for _, addr := range emailToken.FindAllString(line, -1) {
		lower := strings.ToLower(addr)
		for _, suffix := range m.emailSuffixes {
			if strings.HasSuffix(lower, strings.ToLower(suffix)) {
				out = append(out, Indicator{Type: IndicatorEmail, Value: lower, RelativePath: relPath, Line: lineNo})
				break
			}
		}
	}
	return out
}

func (m *Matchers) matchIPv4(line, relPath string, lineNo int) []Indicator {
	if len(m.cidrs) == 0 {
		return nil
	}
	var out []Indicator
	for _, candidate := range ipv4Token.FindAllString(line, -1) {
		addr, err := netip.ParseAddr(candidate)
		if err != nil || !addr.Is4() {
			continue
		}
		for _, cidr := range m.cidrs {
			if cidr.Contains(addr) {
				out = append(out, Indicator{Type: IndicatorIPv4, Value: addr.String(), RelativePath: relPath, Line: lineNo})
				break
			}
		}
	}
	return out
}

func isValidHostname(host string) bool {
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	labels := strings.Split(host, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
	}
	return true
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// IsScannable reports whether a member should be fed to the scanner under
// the default configuration: only .txt members, case-insensitive.
func IsScannable(m archive.Member) bool {
	return strings.HasSuffix(strings.ToLower(m.RelativePath), ".txt")
}
