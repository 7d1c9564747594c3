package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBulkResultAdd(t *testing.T) {
	total := &BulkResult{Created: 1, Errors: []string{"a: boom"}}
	total.Add(&BulkResult{Created: 2, Updated: 3, Failed: 1, Errors: []string{"b: boom"}})

	assert.Equal(t, 3, total.Created)
	assert.Equal(t, 3, total.Updated)
	assert.Equal(t, 1, total.Failed)
	assert.Equal(t, []string{"a: boom", "b: boom"}, total.Errors)
}

func TestBulkResultAddNil(t *testing.T) {
	total := &BulkResult{Created: 1}
	total.Add(nil)
	assert.Equal(t, 1, total.Created)
}
