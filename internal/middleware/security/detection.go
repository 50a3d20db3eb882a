package security

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	applog "budgetsync/internal/log"
)

// DefaultTrustedProxies are the networks whose forwarding headers are
// believed until TrustProxies replaces them.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// Reason names one rule a request tripped.
type Reason string

const (
	ReasonAttackPath   Reason = "attack_path"
	ReasonUnknownRoute Reason = "unknown_route"
	ReasonScanner      Reason = "scanner_agent"
	ReasonMethod       Reason = "unexpected_method"
	ReasonNonJSONBody  Reason = "non_json_body"
	ReasonOversizedURL Reason = "oversized_url"
	ReasonForwardChain Reason = "long_forward_chain"
)

const (
	maxURLLength        = 2048
	maxForwardedHops    = 5
	jsonContentTypeBase = "application/json"
)

// Fragments that only show up when someone is scanning for files or
// injection points. User ids are opaque, so the check runs on the escaped
// path where a legitimate "%2F" in a uid stays encoded.
var attackFragments = []string{
	"../", "..%2f", "%2e%2e", ".env", ".git", ".ssh", "wp-", ".php",
	"etc/passwd", "cmd.exe", "<script", "%3cscript", "union select", "union+select",
}

var scannerAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "nuclei",
}

// DetectionMetrics counts flagged requests and rejected forwarding headers.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
	ByReason           map[Reason]int64
}

// Detector flags requests that do not look like budget API traffic and
// resolves the client IP behind trusted proxies.
type Detector struct {
	routes []string

	proxyMu        sync.RWMutex
	trustedProxies []*net.IPNet

	suspicious atomic.Int64
	invalidIP  atomic.Int64
	reasonMu   sync.Mutex
	byReason   map[Reason]int64
}

// NewDetector accepts paths equal to, or under, one of routes. A route
// ending in "/" is a prefix; any other route must match exactly.
func NewDetector(routes []string) *Detector {
	d := &Detector{
		routes:   append([]string(nil), routes...),
		byReason: make(map[Reason]int64),
	}
	for _, cidr := range DefaultTrustedProxies {
		_, network, _ := net.ParseCIDR(cidr)
		d.trustedProxies = append(d.trustedProxies, network)
	}
	return d
}

// TrustProxies replaces the trusted proxy networks. An empty list trusts no
// proxy, so forwarding headers are ignored.
func (d *Detector) TrustProxies(cidrs []string) error {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		networks = append(networks, network)
	}
	d.proxyMu.Lock()
	d.trustedProxies = networks
	d.proxyMu.Unlock()
	return nil
}

// Inspect returns every rule r trips, sorted, or nil for ordinary traffic.
func (d *Detector) Inspect(r *http.Request) []Reason {
	var reasons []Reason

	path := strings.ToLower(r.URL.EscapedPath())
	query := strings.ToLower(r.URL.RawQuery)
	if containsAny(path, attackFragments) || containsAny(query, attackFragments) {
		reasons = append(reasons, ReasonAttackPath)
	} else if !d.knownRoute(r.URL.Path) {
		reasons = append(reasons, ReasonUnknownRoute)
	}

	if containsAny(strings.ToLower(r.Header.Get("User-Agent")), scannerAgents) {
		reasons = append(reasons, ReasonScanner)
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
	case http.MethodPost:
		if !isJSON(r.Header.Get("Content-Type")) {
			reasons = append(reasons, ReasonNonJSONBody)
		}
	default:
		reasons = append(reasons, ReasonMethod)
	}

	if len(r.URL.String()) > maxURLLength {
		reasons = append(reasons, ReasonOversizedURL)
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") >= maxForwardedHops {
		reasons = append(reasons, ReasonForwardChain)
	}

	if len(reasons) == 0 {
		return nil
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	d.suspicious.Add(1)
	d.reasonMu.Lock()
	for _, reason := range reasons {
		d.byReason[reason]++
	}
	d.reasonMu.Unlock()
	return reasons
}

func (d *Detector) knownRoute(path string) bool {
	for _, route := range d.routes {
		if strings.HasSuffix(route, "/") {
			if strings.HasPrefix(path, route) && len(path) > len(route) {
				return true
			}
			continue
		}
		if path == route {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the first X-Forwarded-For address, or X-Real-IP,
// when the connection comes from a trusted proxy, and the peer address
// otherwise.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	peer := net.ParseIP(directIP)
	if peer == nil || !d.isTrustedProxy(peer) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
		d.invalidIP.Add(1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	d.proxyMu.RLock()
	defer d.proxyMu.RUnlock()
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	d.reasonMu.Lock()
	byReason := make(map[Reason]int64, len(d.byReason))
	for k, v := range d.byReason {
		byReason[k] = v
	}
	d.reasonMu.Unlock()
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
		ByReason:           byReason,
	}
}

// Middleware logs flagged requests and lets them through; the handlers
// validate everything they read.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reasons := d.Inspect(r); reasons != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldClientIP, d.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				"reasons", reasons)
		}
		next.ServeHTTP(w, r)
	})
}

func isJSON(contentType string) bool {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(base), jsonContentTypeBase)
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
