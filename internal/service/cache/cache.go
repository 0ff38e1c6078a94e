// Package cache memoizes finished signal runs so repeated reads of the same
// run date skip recomputation.
package cache

import "time"

// BytesCache stores opaque payloads with a TTL. A zero TTL means no expiry.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
