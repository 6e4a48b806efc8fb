package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestSearchRowTables_CoversEveryTypedSearchTable(t *testing.T) {
	assert.Contains(t, searchRowTables, "search_string")
	assert.Contains(t, searchRowTables, "search_composite")
	assert.Contains(t, searchRowTables, "search_token_identifier")
}
