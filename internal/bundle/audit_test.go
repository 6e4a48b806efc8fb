package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionAudit_AssignsAnID(t *testing.T) {
	a := newTransactionAudit("transaction")
	assert.NotEmpty(t, a.id)
	assert.Equal(t, "transaction", a.bundleType)
}

func TestTransactionAudit_RecordAppendsEntry(t *testing.T) {
	a := newTransactionAudit("batch")
	a.record(0, "POST", "Patient", 201, "Patient", "1", "")
	require.Len(t, a.entries, 1)
	assert.Equal(t, "POST", a.entries[0].method)
	assert.Equal(t, 201, a.entries[0].statusCode)
}

func TestTransactionAudit_AppendEntrySetsIndex(t *testing.T) {
	a := newTransactionAudit("transaction")
	a.appendEntry(3, auditEntry{method: "PUT", statusCode: 200})
	require.Len(t, a.entries, 1)
	assert.Equal(t, 3, a.entries[0].index)
}

func TestNullIfEmptyStr(t *testing.T) {
	assert.Nil(t, nullIfEmptyStr(""))
	require.NotNil(t, nullIfEmptyStr("x"))
	assert.Equal(t, "x", *nullIfEmptyStr("x"))
}
