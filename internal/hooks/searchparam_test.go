package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate() { f.calls++ }

func TestSearchParamHook_ResourceTypesIsSearchParameterOnly(t *testing.T) {
	h := NewSearchParamHook(&fakeInvalidator{})
	assert.Equal(t, []string{"SearchParameter"}, h.ResourceTypes())
}

func TestSearchParamHook_AfterWriteInvalidatesCache(t *testing.T) {
	inv := &fakeInvalidator{}
	h := NewSearchParamHook(inv)
	assert.NoError(t, h.AfterWrite(nil, "SearchParameter", "1", nil))
	assert.Equal(t, 1, inv.calls)
}

func TestSearchParamHook_AfterDeleteInvalidatesCache(t *testing.T) {
	inv := &fakeInvalidator{}
	h := NewSearchParamHook(inv)
	assert.NoError(t, h.AfterDelete(nil, "SearchParameter", "1"))
	assert.Equal(t, 1, inv.calls)
}
