package store

import (
	"context"
	"time"
)

// TTLStatus describes the expiry state of a key.
type TTLStatus int

const (
	// TTLAbsent means the key does not exist.
	TTLAbsent TTLStatus = iota
	// TTLNoExpiry means the key exists but will never expire on its own.
	TTLNoExpiry
	// TTLExpiring means the key exists and expires after TTL.Remaining.
	TTLExpiring
)

func (s TTLStatus) String() string {
	switch s {
	case TTLAbsent:
		return "absent"
	case TTLNoExpiry:
		return "no-expiry"
	case TTLExpiring:
		return "expiring"
	default:
		return "unknown"
	}
}

// TTL is the result of a TTL query.
type TTL struct {
	Status    TTLStatus
	Remaining time.Duration
}

// Store abstracts the shared key-value store used to coordinate elections.
//
// Every operation is a single, individually atomic store command. Callers
// compose them without any cross-operation atomicity.
type Store interface {
	// Get returns the value stored at key. The boolean reports whether the
	// key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value at key without an expiry, replacing any previous
	// value and its TTL.
	Set(ctx context.Context, key, value string) error
	// Del removes key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error
	// Expire sets the TTL of key, rounded up to whole seconds. It is a no-op
	// for absent keys. A non-positive ttl removes the key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL reports the expiry state of key.
	TTL(ctx context.Context, key string) (TTL, error)
}

// SetIfAbsenter is implemented by stores able to write a value only when the
// key does not exist yet, in a single atomic command.
type SetIfAbsenter interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// seconds rounds d up to whole seconds, the resolution of store TTLs.
func seconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	s := d.Truncate(time.Second)
	if s < d {
		s += time.Second
	}
	return s
}
