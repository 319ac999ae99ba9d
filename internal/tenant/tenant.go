// Package tenant derives the isolation scope ("lab") a connection belongs to.
//
// Agents and controllers only see each other when their resolved keys match.
// Keys are case-insensitive on input and canonicalised to upper case.
package tenant

import "strings"

// Default is the scope used when a connection does not name a lab.
const Default = "DEFAULT"

// Resolve returns the canonical tenant key for a raw lab hint taken from
// connection metadata.
func Resolve(hint string) string {
	key := strings.ToUpper(strings.TrimSpace(hint))
	if key == "" {
		return Default
	}
	return key
}

// Match reports whether two already-resolved keys name the same scope.
func Match(a, b string) bool {
	return a != "" && a == b
}
