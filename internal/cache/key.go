package cache

import (
	"crypto/md5" //nolint:gosec // G501: digest names files, it is not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

const fileExt = ".json"

// DeriveKey hashes payload into a 32 character hex key. Maps, slices, arrays
// and structs are serialized as JSON with sorted object keys, so {"a":1,"b":2}
// and {"b":2,"a":1} collide while [1,2,3] and [3,2,1] do not. Anything else is
// hashed from its fmt text form. The canonical text is compact JSON, so keys
// are stable across Go processes only.
func DeriveKey(payload any) string {
	sum := md5.Sum([]byte(canonicalText(payload))) //nolint:gosec // G401: see import
	return hex.EncodeToString(sum[:])
}

func canonicalText(payload any) string {
	if !isComposite(payload) {
		return fmt.Sprint(payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	// Round-trip through the generic form so struct fields are sorted the
	// same way map keys already are.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}
	sorted, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(sorted)
}

func isComposite(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, "/\\\x00") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func fileName(key string) string { return key + fileExt }

// keyFromFile returns the key for a listed file, or false for files the cache
// does not own.
func keyFromFile(name string) (string, bool) {
	if !strings.HasSuffix(name, fileExt) || strings.Contains(name, "/") {
		return "", false
	}
	key := strings.TrimSuffix(name, fileExt)
	return key, validateKey(key) == nil
}
