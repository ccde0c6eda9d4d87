package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxKeyPartLen bounds both the namespace and the key name, in bytes.
	MaxKeyPartLen = 256

	separator = "/"
)

// Key addresses a memory item inside a namespace (user, session, or agent scope).
// Two namespaces never share keys.
type Key struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// NewKey builds and validates a Key.
func NewKey(namespace, name string) (Key, error) {
	k := Key{Namespace: namespace, Name: name}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}

	return k, nil
}

// Validate checks that both parts are present, bounded, valid UTF-8 and
// printable, and that the namespace does not contain the separator.
func (k Key) Validate() error {
	if err := validatePart("namespace", k.Namespace); err != nil {
		return err
	}
	if strings.Contains(k.Namespace, separator) {
		return invalidKey("namespace %q must not contain %q", k.Namespace, separator)
	}

	return validatePart("key", k.Name)
}

// String returns the storage form "namespace/name" used by every tier.
func (k Key) String() string {
	return k.Namespace + separator + k.Name
}

// ParseKey splits a storage key produced by Key.String.
func ParseKey(s string) (Key, error) {
	ns, name, ok := strings.Cut(s, separator)
	if !ok {
		return Key{}, invalidKey("storage key %q has no namespace", s)
	}

	return NewKey(ns, name)
}

func validatePart(what, s string) error {
	if s == "" {
		return invalidKey("%s is empty", what)
	}
	if len(s) > MaxKeyPartLen {
		return invalidKey("%s exceeds %d bytes", what, MaxKeyPartLen)
	}
	if !utf8.ValidString(s) {
		return invalidKey("%s %q is not valid UTF-8", what, s)
	}

	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return invalidKey("%s %q contains whitespace or control characters", what, s)
		}
	}

	return nil
}
