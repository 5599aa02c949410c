// Package metadata is the CLI's key/value store. It keeps the anonymous
// identity and the session token between invocations.
package metadata

import "context"

const (
	KeyIdentity     = "identity"
	KeySessionToken = "session_token"
)

// Repository returns (nil, nil) from Get when the key is absent.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
