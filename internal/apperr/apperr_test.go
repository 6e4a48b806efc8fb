package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_ErrorStringHasNoCause(t *testing.T) {
	err := New(KindNotFound, "Patient/1 not found")
	assert.Equal(t, "not_found: Patient/1 not found", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap_ErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindDatabase, cause, "read resource")
	assert.Equal(t, "database: read resource: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf(KindValidation, "expected version %d, got %d", 2, 1)
	assert.Equal(t, "validation: expected version 2, got 1", err.Msg)
}

func TestAs_UnwrapsThroughStandardWrapping(t *testing.T) {
	original := New(KindVersionConflict, "stale write")
	wrapped := errors.New("outer: " + original.Error())
	_, ok := As(wrapped)
	assert.False(t, ok, "a plain errors.New should not satisfy As")

	found, ok := As(original)
	require := assert.New(t)
	require.True(ok)
	require.Equal(KindVersionConflict, found.Kind)

	doubleWrapped := errors.Join(errors.New("context"), original)
	found2, ok2 := As(doubleWrapped)
	require.True(ok2)
	require.Equal(KindVersionConflict, found2.Kind)
}

func TestHTTPStatus_MapsEveryKind(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:           http.StatusNotFound,
		KindDeleted:            http.StatusGone,
		KindVersionConflict:    http.StatusConflict,
		KindPreconditionFailed: http.StatusPreconditionFailed,
		KindValidation:         http.StatusBadRequest,
		KindInvalidResource:    http.StatusBadRequest,
		KindFhirPath:           http.StatusBadRequest,
		KindMethodNotAllowed:   http.StatusMethodNotAllowed,
		KindUnsupportedMedia:   http.StatusUnsupportedMediaType,
		KindBusinessRule:       http.StatusUnprocessableEntity,
		KindDatabase:           http.StatusInternalServerError,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), string(kind))
	}
}

func TestIssueCode_UnknownKindFallsBackToException(t *testing.T) {
	assert.Equal(t, "exception", Kind("made-up").IssueCode())
}
