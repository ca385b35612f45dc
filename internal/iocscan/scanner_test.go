package iocscan

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanTextFindsEmailAndIPv4(t *testing.T) {
	cidr := netip.MustParsePrefix("10.0.0.0/24")
	m := NewMatchers(nil, []string{"@example.gov"}, []netip.Prefix{cidr})

	body := "admin@example.gov\n10.0.0.5\n"
	indicators, truncated := m.ScanText("a.txt", strings.NewReader(body))
	require.Equal(t, 0, truncated)

	require.Len(t, indicators, 2)
	require.Equal(t, IndicatorEmail, indicators[0].Type)
	require.Equal(t, "admin@example.gov", indicators[0].Value)
	require.Equal(t, 1, indicators[0].Line)

	require.Equal(t, IndicatorIPv4, indicators[1].Type)
	require.Equal(t, "10.0.0.5", indicators[1].Value)
	require.Equal(t, 2, indicators[1].Line)
}

func TestScanTextIPv4OutsideCIDRIsDropped(t *testing.T) {
	cidr := netip.MustParsePrefix("10.0.0.0/8")
	m := NewMatchers(nil, nil, []netip.Prefix{cidr})

	indicators, _ := m.ScanText("a.txt", strings.NewReader("192.168.1.10\n"))
	require.Empty(t, indicators)
}

func TestScanTextDomainSuffix(t *testing.T) {
	m := NewMatchers([]string{"evil.example"}, nil, nil)

	indicators, _ := m.ScanText("a.txt", strings.NewReader("visit c2.evil.example for updates\n"))
	require.Len(t, indicators, 1)
	require.Equal(t, IndicatorDomain, indicators[0].Type)
	require.Equal(t, "c2.evil.example", indicators[0].Value)
}

func TestScanTextTruncatesLongLines(t *testing.T) {
	m := NewMatchers(nil, []string{"@example.gov"}, nil)

	longLine := strings.Repeat("x", maxLineBytes+1000) + " admin@example.gov"
	_, truncated := m.ScanText("a.txt", strings.NewReader(longLine))
	require.Equal(t, 1, truncated)
}

func TestScanTextNoMatchesWhenUnconfigured(t *testing.T) {
	m := NewMatchers(nil, nil, nil)
	indicators, _ := m.ScanText("a.txt", strings.NewReader("admin@example.gov 10.0.0.5 evil.example\n"))
	require.Empty(t, indicators)
}
