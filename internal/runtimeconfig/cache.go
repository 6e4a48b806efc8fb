package runtimeconfig

import (
	"encoding/json"
	"sync"

	"github.com/fhirstore/zunder/internal/config"
)

// Cache is the in-memory, read-mostly view of runtime configuration
// (spec §4.9, §5 "process-wide, read-mostly, guarded by readers-writer
// locks"). It is populated from the database at startup, kept current by
// Service's LISTEN/NOTIFY subscriber, and falls back to the static
// config default for any key with no override row.
type Cache struct {
	mu     sync.RWMutex
	values map[ConfigKey]json.RawMessage
	static *config.Config
}

func NewCache(static *config.Config) *Cache {
	return &Cache{values: make(map[ConfigKey]json.RawMessage), static: static}
}

// Load replaces the entire cache contents, used once at startup after
// reading every override row from the database.
func (c *Cache) Load(values map[ConfigKey]json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = values
}

// Set installs or replaces a single key's cached value, called by Service
// after a successful write and by the change-notification subscriber
// when another node reports a key changed.
func (c *Cache) Set(key ConfigKey, raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
}

// Remove resets key to its static default.
func (c *Cache) Remove(key ConfigKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[ConfigKey]json.RawMessage)
}

// HasOverride reports whether key has a database-sourced value rather
// than falling back to its static default.
func (c *Cache) HasOverride(key ConfigKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[key]
	return ok
}

// GetJSON returns the effective value for key as raw JSON: the override
// if cached, else the static default.
func (c *Cache) GetJSON(key ConfigKey) json.RawMessage {
	c.mu.RLock()
	raw, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return raw
	}
	return c.staticDefaultJSON(key)
}

// GetAll returns every currently-overridden key, for the administrative
// listing endpoint.
func (c *Cache) GetAll() map[ConfigKey]json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[ConfigKey]json.RawMessage, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Get deserializes the effective value for key into T, falling back
// silently to the static default's zero-error path if the cached value
// doesn't unmarshal cleanly (a malformed override must never panic a
// request path).
func Get[T any](c *Cache, key ConfigKey) T {
	var out T
	raw := c.GetJSON(key)
	if err := json.Unmarshal(raw, &out); err != nil {
		_ = json.Unmarshal(c.staticDefaultJSON(key), &out)
	}
	return out
}

// GetBool is a convenience wrapper over Get for KindBoolean keys, the
// large majority of the interaction-toggle set.
func (c *Cache) GetBool(key ConfigKey) bool { return Get[bool](c, key) }

// GetInt is the KindInteger convenience wrapper.
func (c *Cache) GetInt(key ConfigKey) int { return Get[int](c, key) }

// GetString is the KindString/KindEnum convenience wrapper.
func (c *Cache) GetString(key ConfigKey) string { return Get[string](c, key) }

func jsonOf(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

// staticDefaultJSON returns the built-in default for key. Only the
// logging level is read from the process's static Config; the search,
// format and bundle limits are constants in this switch, and any other
// boolean key (the interaction toggles) defaults to true (spec
// §4.9: "Each key has a static-config default").
func (c *Cache) staticDefaultJSON(key ConfigKey) json.RawMessage {
	switch key {
	case LoggingLevel:
		return jsonOf(c.static.LogLevel.String())
	case SearchDefaultCount:
		return jsonOf(20)
	case SearchMaxCount:
		return jsonOf(1000)
	case SearchMaxTotalResults:
		return jsonOf(10000)
	case SearchMaxIncludeDepth:
		return jsonOf(5)
	case SearchMaxIncludes:
		return jsonOf(100)
	case FormatDefault:
		return jsonOf("application/fhir+json")
	case BundleMaxEntries:
		return jsonOf(500)
	default:
		if key.Kind() == KindBoolean {
			return jsonOf(true)
		}
		return json.RawMessage("null")
	}
}
