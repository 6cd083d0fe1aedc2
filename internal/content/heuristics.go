// Package content runs advisory heuristics over the decoded QR payload
// string. Findings never change the classifier verdict; they give the caller
// extra context about where a scanned code would send the user.
package content

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/arbovm/levenshtein"

	"go-qr-inspector/pkg/models"
)

// wellKnownDomains are frequent phishing impersonation targets. A host within
// small edit distance of one of these, without being it, is a lookalike.
var wellKnownDomains = []string{
	"google.com",
	"paypal.com",
	"apple.com",
	"amazon.com",
	"microsoft.com",
	"facebook.com",
	"instagram.com",
	"whatsapp.com",
	"netflix.com",
	"github.com",
}

// shortenerDomains hide the real destination behind a redirect.
var shortenerDomains = map[string]bool{
	"bit.ly":      true,
	"tinyurl.com": true,
	"t.co":        true,
	"goo.gl":      true,
	"is.gd":       true,
	"ow.ly":       true,
	"cutt.ly":     true,
	"rb.gy":       true,
}

const maxSubdomainDepth = 4

// Inspector runs the payload heuristics. Stateless and deterministic.
type Inspector struct{}

// NewInspector creates a payload inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect analyzes a decoded QR payload. Non-URL payloads (wifi configs,
// vcards, plain text) produce no findings; only URLs carry redirect risk.
func (i *Inspector) Inspect(payload string) []models.ContentFinding {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	parsed, err := url.Parse(payload)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil
	}

	var findings []models.ContentFinding
	host := strings.ToLower(parsed.Hostname())

	if parsed.Scheme == "http" {
		findings = append(findings, models.ContentFinding{
			Code:    "plain_http",
			Message: "link is unencrypted http",
		})
	}

	if net.ParseIP(host) != nil {
		findings = append(findings, models.ContentFinding{
			Code:    "raw_ip_host",
			Message: fmt.Sprintf("link points at a raw IP address (%s)", host),
		})
		return findings
	}

	if strings.Contains(host, "xn--") {
		findings = append(findings, models.ContentFinding{
			Code:    "punycode_host",
			Message: "hostname uses punycode, often a homograph disguise",
		})
	}

	if shortenerDomains[registrableDomain(host)] {
		findings = append(findings, models.ContentFinding{
			Code:    "url_shortener",
			Message: fmt.Sprintf("destination hidden behind shortener %s", registrableDomain(host)),
		})
	}

	if strings.Count(host, ".") >= maxSubdomainDepth {
		findings = append(findings, models.ContentFinding{
			Code:    "deep_subdomains",
			Message: "unusually deep subdomain nesting",
		})
	}

	if target := lookalikeTarget(host); target != "" {
		findings = append(findings, models.ContentFinding{
			Code:    "lookalike_domain",
			Message: fmt.Sprintf("host %s closely resembles %s", host, target),
		})
	}

	return findings
}

// lookalikeTarget returns the well-known domain the host imitates, if any:
// an edit distance of 1 or 2 from a target without being the target itself
// or a legitimate subdomain of it.
func lookalikeTarget(host string) string {
	reg := registrableDomain(host)
	for _, known := range wellKnownDomains {
		if reg == known {
			return ""
		}
	}
	for _, known := range wellKnownDomains {
		dist := levenshtein.Distance(reg, known)
		if dist > 0 && dist <= 2 {
			return known
		}
	}
	return ""
}

// registrableDomain keeps the last two labels of the host. Good enough for
// the fixed target list above; no public-suffix handling.
func registrableDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
