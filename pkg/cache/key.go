package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies a cached value.
type Key struct {
	// Namespace groups values of one kind (e.g., "service")
	Namespace string

	// Params distinguish values within the namespace (e.g., {"gateway_account_id": "42"})
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: frontend:namespace:param1=val1:param2=val2
//
// Example:
//
//	frontend:service:gateway_account_id=42
func (k Key) String() string {
	parts := []string{"frontend"}

	namespace := strings.Trim(k.Namespace, ":")
	if namespace != "" {
		parts = append(parts, namespace)
	}

	// Sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	return strings.Join(parts, ":")
}

// ServiceKey returns the key under which the service owning a gateway
// account is cached.
func ServiceKey(gatewayAccountID int64) string {
	return Key{
		Namespace: "service",
		Params:    map[string]string{"gateway_account_id": fmt.Sprint(gatewayAccountID)},
	}.String()
}
