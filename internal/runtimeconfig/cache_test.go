package runtimeconfig

import (
	"encoding/json"
	"testing"

	"github.com/fhirstore/zunder/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestCache() *Cache {
	return NewCache(&config.Config{LogLevel: logrus.InfoLevel})
}

func TestCache_GetBool_DefaultsToEnabledForInteractionToggles(t *testing.T) {
	c := newTestCache()
	assert.True(t, c.GetBool(InteractionsTypeCreate))
}

func TestCache_GetInt_FallsBackToStaticDefault(t *testing.T) {
	c := newTestCache()
	assert.Equal(t, 20, c.GetInt(SearchDefaultCount))
	assert.Equal(t, 1000, c.GetInt(SearchMaxCount))
}

func TestCache_SetOverridesStaticDefault(t *testing.T) {
	c := newTestCache()
	c.Set(InteractionsTypeCreate, json.RawMessage("false"))
	assert.False(t, c.GetBool(InteractionsTypeCreate))
	assert.True(t, c.HasOverride(InteractionsTypeCreate))
}

func TestCache_Remove_RevertsToStaticDefault(t *testing.T) {
	c := newTestCache()
	c.Set(SearchMaxCount, json.RawMessage("5"))
	assert.Equal(t, 5, c.GetInt(SearchMaxCount))

	c.Remove(SearchMaxCount)
	assert.Equal(t, 1000, c.GetInt(SearchMaxCount))
	assert.False(t, c.HasOverride(SearchMaxCount))
}

func TestCache_Load_ReplacesEntireOverrideSet(t *testing.T) {
	c := newTestCache()
	c.Set(SearchMaxCount, json.RawMessage("5"))
	c.Load(map[ConfigKey]json.RawMessage{SearchDefaultCount: json.RawMessage("7")})

	assert.False(t, c.HasOverride(SearchMaxCount))
	assert.Equal(t, 7, c.GetInt(SearchDefaultCount))
}

func TestCache_MalformedOverrideFallsBackToStaticDefaultWithoutPanic(t *testing.T) {
	c := newTestCache()
	c.Set(SearchMaxCount, json.RawMessage(`"not-an-int"`))
	assert.NotPanics(t, func() {
		assert.Equal(t, 1000, c.GetInt(SearchMaxCount))
	})
}

func TestCache_GetAll_ReturnsOnlyOverrides(t *testing.T) {
	c := newTestCache()
	c.Set(SearchMaxCount, json.RawMessage("5"))
	all := c.GetAll()
	assert.Len(t, all, 1)
	_, ok := all[SearchMaxCount]
	assert.True(t, ok)
}
