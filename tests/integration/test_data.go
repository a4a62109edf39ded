package integration

import (
	"fmt"
	"time"
)

// TestIdentity generates a unique login identity using a timestamp
func TestIdentity(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().Unix(), suffix)
}

// ForwardedFor builds the header map that makes the server attribute the
// request to the given client IP. The test server trusts loopback proxies.
func ForwardedFor(ip string) map[string]string {
	return map[string]string{"X-Forwarded-For": ip}
}

// BearerForwardedFor combines an admin token with a spoofed client IP
func BearerForwardedFor(token, ip string) map[string]string {
	return map[string]string{
		"Authorization":   "Bearer " + token,
		"X-Forwarded-For": ip,
	}
}
