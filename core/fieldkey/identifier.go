package fieldkey

import "go.mongodb.org/mongo-driver/bson/primitive"

// IdentifierPredicate reports whether a path segment is a per-record identifier
// rather than a field name.
type IdentifierPredicate func(segment string) bool

// IsObjectIDHex matches 24 hexadecimal characters, case-insensitively.
func IsObjectIDHex(segment string) bool {
	_, err := primitive.ObjectIDFromHex(segment)
	return err == nil
}

// InPath reports whether any dot-segment of path is an identifier.
func (p IdentifierPredicate) InPath(path string) bool {
	for _, seg := range splitPath(path) {
		if p(seg) {
			return true
		}
	}
	return false
}

// Taints reports whether a discovered entry carries an identifier in its path or placeholder.
// Custom keys are never tainted.
func (p IdentifierPredicate) Taints(f Field) bool {
	if f.IsCustom() {
		return false
	}
	return p.InPath(f.DBFieldPath) || p.InPath(f.PlaceholderKey)
}
