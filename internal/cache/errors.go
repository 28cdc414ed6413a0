package cache

import "errors"

var (
	// ErrInvalidKey is returned by Set for keys that cannot name a file.
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrUnserializable is returned by Set when the value has no JSON form.
	ErrUnserializable = errors.New("cache value is not serializable")
	// ErrWrite wraps persistent-tier write failures.
	ErrWrite = errors.New("cache write failed")
	// ErrCorruptEntry marks a persistent file that could not be decoded. It is
	// never returned to callers; the file is removed and treated as a miss.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)
