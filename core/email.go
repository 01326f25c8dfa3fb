package core

import "strings"

// EmailDomain extracts the tenant-lookup domain from an email address: the
// address is split on "@" and only the second part is taken. An address with
// no "@" yields the empty string, which never resolves to a tenant.
//
// An address with more than one "@" still yields only the second part
// ("a@b@c.com" -> "b"). This narrow behavior is load-bearing for existing
// tenants and is kept as-is.
func EmailDomain(email string) string {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}
