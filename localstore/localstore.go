// Package localstore provides the key-value abstraction for locally
// persisted client state.
//
// Device trust and the session cache each own a disjoint key namespace, so
// no coordination beyond namespacing is required between them.
// Implementations: bolt/ (file-backed), memory/ (testing).
package localstore

// Store is an injectable string key-value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set writes the value for key.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// Namespace returns a Store view that prefixes every key, guaranteeing
// disjoint namespaces between components sharing one underlying store.
func Namespace(s Store, prefix string) Store {
	return &namespaced{inner: s, prefix: prefix + ":"}
}

type namespaced struct {
	inner  Store
	prefix string
}

func (n *namespaced) Get(key string) (string, bool, error) {
	return n.inner.Get(n.prefix + key)
}

func (n *namespaced) Set(key, value string) error {
	return n.inner.Set(n.prefix+key, value)
}

func (n *namespaced) Delete(key string) error {
	return n.inner.Delete(n.prefix + key)
}
