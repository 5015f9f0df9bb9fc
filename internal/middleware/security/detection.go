// Package security resolves client IPs behind trusted proxies, flags
// suspicious requests and sets response security headers.
package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"budgetbuddy/internal/log"
)

var (
	suspiciousPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	// API clients legitimately use curl and friends, so only scanners are flagged.
	suspiciousAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
	}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	BlockedRequests    int64
}

// Detector handles suspicious request detection
type Detector struct {
	suspicious     atomic.Int64
	blocked        atomic.Int64
	trustedProxies []*net.IPNet
}

// NewDetector creates a detector that trusts loopback and private ranges
// as proxies.
func NewDetector() *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
			parseCIDR("::1/128"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// DetectSuspiciousRequest analyzes request patterns for potential threats
// and returns the first reason found, or "" for a clean request.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) string {
	reason := detect(r)
	if reason != "" {
		d.suspicious.Add(1)
	}
	return reason
}

func detect(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, p := range suspiciousPatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return "pattern:" + p
		}
	}

	userAgent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range suspiciousAgents {
		if strings.Contains(userAgent, a) {
			return "agent:" + a
		}
	}

	for _, m := range unusualMethods {
		if r.Method == m {
			return "method:" + m
		}
	}

	if len(r.URL.String()) > 2048 {
		return "long_url"
	}

	if xff := r.Header.Get("X-Forwarded-For"); strings.Count(xff, ",") > 5 {
		return "proxy_chain"
	}
	return ""
}

// Middleware rejects suspicious requests with 400 and logs them.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.DetectSuspiciousRequest(r); reason != "" {
			d.blocked.Add(1)
			ctx := r.Context()
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request blocked",
				log.FieldComponent, log.ComponentSecurity,
				"reason", reason,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, d.ExtractClientIP(r))
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP extracts the real client IP, validating forwarded headers
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil {
		return directIP
	}

	// Forwarded headers are only believed when they come from a proxy we trust.
	if d.isTrustedProxy(parsedDirectIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			clientIP := strings.TrimSpace(first)
			if net.ParseIP(clientIP) != nil {
				return clientIP
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		BlockedRequests:    d.blocked.Load(),
	}
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
