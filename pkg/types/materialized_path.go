package types

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RootMaterializedPath is how a Location's own root materializes.
const RootMaterializedPath = "/"

// NewMaterializedPath builds the canonical materialized path for a
// location-relative set of components. Each component is NFC-normalized;
// components containing "/" or NUL are rejected. The result always starts
// with "/"; isDir appends a trailing "/".
func NewMaterializedPath(components []string, isDir bool) (string, error) {
	if len(components) == 0 {
		return RootMaterializedPath, nil
	}

	normalized := make([]string, len(components))
	for i, c := range components {
		if strings.ContainsAny(c, "/\x00") {
			return "", fmt.Errorf("materialized path component %q contains '/' or NUL", c)
		}
		normalized[i] = norm.NFC.String(c)
	}

	p := "/" + strings.Join(normalized, "/")
	if isDir {
		p += "/"
	}
	return p, nil
}

// IsPrefixOf reports whether parent is a directory-materialized-path prefix
// of child, e.g. "/a/" is a prefix of "/a/b.txt" and of "/a/b/".
func IsPrefixOf(parent, child string) bool {
	if parent == RootMaterializedPath {
		return child != RootMaterializedPath
	}
	return strings.HasPrefix(child, parent) && child != parent
}
