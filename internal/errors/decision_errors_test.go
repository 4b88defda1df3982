package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	err := NewBrokerRejection("executor", "insufficient margin")
	assert.Equal(t, ErrorCategoryBrokerRejection, CategoryOf(err))

	wrapped := fmt.Errorf("cycle failed: %w", err)
	assert.Equal(t, ErrorCategoryBrokerRejection, CategoryOf(wrapped))

	assert.Equal(t, ErrorCategoryInternal, CategoryOf(fmt.Errorf("plain")))
}
