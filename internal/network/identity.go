package network

import (
	"fmt"
	"strings"
)

// IdentitySeparator joins the username and remote path of a download identity.
// Usernames containing it cannot be round-tripped; remote paths may contain it.
const IdentitySeparator = ":"

// Identity returns the download identity "{username}:{path}".
func Identity(username, path string) string {
	return username + IdentitySeparator + path
}

// ParseIdentity splits an identity on its first separator.
func ParseIdentity(identity string) (username, path string, err error) {
	username, path, ok := strings.Cut(identity, IdentitySeparator)
	if !ok || username == "" || path == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedIdentity, identity)
	}
	return username, path, nil
}
