package logging

import "github.com/oklog/ulid/v2"

// NewRunID generates a unique identifier for one scanwarden invocation.
// ULIDs sort lexicographically by creation time, which keeps per-run log
// files ordered in directory listings.
func NewRunID() string {
	return ulid.Make().String()
}
