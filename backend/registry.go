package backend

import (
	"fmt"
	"os"
	"sync"
)

// DecodeFunc parses a complete encoded animation.
type DecodeFunc func(data []byte) (Backend, error)

type format struct {
	name   string
	magic  string
	decode DecodeFunc
}

var (
	registryMu sync.RWMutex
	// Registration order is the sniffing order.
	formats []format
)

// Register registers a container format.
//
// magic is the byte prefix identifying the format; '?' matches any byte.
// This is typically called from init() functions in format packages, so a
// format is enabled by a blank import:
//
//	import _ "github.com/gogpu/ganim/backend/gif"
//
// If a format with the same name is already registered, it is replaced in
// place.
func Register(name, magic string, decode DecodeFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	f := format{name: name, magic: magic, decode: decode}
	for i := range formats {
		if formats[i].name == name {
			formats[i] = f
			return
		}
	}
	formats = append(formats, f)
}

// Unregister removes a format from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	for i := range formats {
		if formats[i].name == name {
			formats = append(formats[:i], formats[i+1:]...)
			return
		}
	}
}

// Available returns the registered format names in sniffing order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.name)
	}
	return names
}

// IsRegistered checks if a format with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, f := range formats {
		if f.name == name {
			return true
		}
	}
	return false
}

// Open sniffs data against the registered formats and decodes it with the
// first match. It returns the backend and the format name.
func Open(data []byte) (Backend, string, error) {
	registryMu.RLock()
	var match *format
	for i := range formats {
		if matchMagic(formats[i].magic, data) {
			f := formats[i]
			match = &f
			break
		}
	}
	registryMu.RUnlock()

	if match == nil {
		return nil, "", ErrUnknownFormat
	}
	b, err := match.decode(data)
	if err != nil {
		return nil, match.name, fmt.Errorf("backend: decoding %s: %w", match.name, err)
	}
	return b, match.name, nil
}

// OpenFile reads path and calls Open.
func OpenFile(path string) (Backend, string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return nil, "", err
	}
	return Open(data)
}

func matchMagic(magic string, data []byte) bool {
	if len(magic) == 0 || len(data) < len(magic) {
		return false
	}
	for i := 0; i < len(magic); i++ {
		if magic[i] != '?' && magic[i] != data[i] {
			return false
		}
	}
	return true
}
