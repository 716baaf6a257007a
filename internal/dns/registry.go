package dns

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/config"
)

// Factory is a constructor function that directory implementations register
// to create themselves.
type Factory func(log logr.Logger, conn config.Connection) (Directory, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by directory packages in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("dns: directory %q already registered", name))
	}
	factories[name] = f
}

// NewDirectory looks up the named directory in the registry and creates it.
func NewDirectory(name string, log logr.Logger, conn config.Connection) (Directory, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported directory: %q (registered: %v)", name, Registered())
	}
	return f(log, conn)
}

// Registered returns the sorted names of all registered directories.
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
