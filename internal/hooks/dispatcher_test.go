package hooks

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHook struct {
	types       []string
	writeCalls  int
	deleteCalls int
	writeErr    error
	deleteErr   error
}

func (f *fakeHook) ResourceTypes() []string { return f.types }
func (f *fakeHook) AfterWrite(tx *sqlx.Tx, resourceType, id string, body json.RawMessage) error {
	f.writeCalls++
	return f.writeErr
}
func (f *fakeHook) AfterDelete(db *sqlx.DB, resourceType, id string) error {
	f.deleteCalls++
	return f.deleteErr
}

func TestDispatcher_OnlyFiresHooksRegisteredForType(t *testing.T) {
	patientHook := &fakeHook{types: []string{"Patient"}}
	observationHook := &fakeHook{types: []string{"Observation"}}
	d := NewDispatcher(patientHook, observationHook)

	require.NoError(t, d.DispatchWrite(nil, "Patient", "1", nil))
	assert.Equal(t, 1, patientHook.writeCalls)
	assert.Equal(t, 0, observationHook.writeCalls)
}

func TestDispatcher_MultipleHooksForSameTypeAllFire(t *testing.T) {
	a := &fakeHook{types: []string{"Patient"}}
	b := &fakeHook{types: []string{"Patient"}}
	d := NewDispatcher(a, b)

	require.NoError(t, d.DispatchWrite(nil, "Patient", "1", nil))
	assert.Equal(t, 1, a.writeCalls)
	assert.Equal(t, 1, b.writeCalls)
}

func TestDispatcher_WriteErrorAborts(t *testing.T) {
	failing := &fakeHook{types: []string{"Patient"}, writeErr: errors.New("boom")}
	d := NewDispatcher(failing)

	err := d.DispatchWrite(nil, "Patient", "1", nil)
	assert.Error(t, err)
}

func TestDispatcher_DeleteErrorsAreSwallowed(t *testing.T) {
	failing := &fakeHook{types: []string{"Patient"}, deleteErr: errors.New("boom")}
	d := NewDispatcher(failing)

	assert.NotPanics(t, func() {
		d.DispatchDelete(nil, "Patient", "1")
	})
	assert.Equal(t, 1, failing.deleteCalls)
}

func TestDispatcher_NoHooksRegisteredIsNoop(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.DispatchWrite(nil, "Patient", "1", nil))
	assert.NotPanics(t, func() { d.DispatchDelete(nil, "Patient", "1") })
}
