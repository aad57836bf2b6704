package models

import "github.com/google/uuid"

// findingNamespace is the fixed UUIDv5 namespace for finding ids. Deriving
// ids from content instead of minting random ones keeps a cycle's sealed
// artifact identical across runs over the same snapshot.
var findingNamespace = uuid.MustParse("7a1e2b9c-4a1f-5c3d-9e2b-0f6d8c4a1e2b")

// DeterministicID derives a stable id for a finding from its kind and its
// distinguishing content parts.
func DeterministicID(kind string, parts ...string) string {
	name := kind
	for _, p := range parts {
		name += "|" + p
	}
	return uuid.NewSHA1(findingNamespace, []byte(name)).String()
}
