package models

import "sort"

// EnvironmentVariant is a named bundle of values substituted into the stack
// (PORT, POSTGRES_PORT, COMMUNITY, SERVER_ADDRESS, PGPORT, ...).
type EnvironmentVariant struct {
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
}

func (v EnvironmentVariant) Lookup(key string) (string, bool) {
	val, ok := v.Values[key]
	return val, ok
}

func (v EnvironmentVariant) Keys() []string {
	keys := make([]string, 0, len(v.Values))
	for k := range v.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
