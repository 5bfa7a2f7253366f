package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetain_SmallBatchAlwaysDeleted(t *testing.T) {
	assert.False(t, ShouldRetain(49, 25)) // 50% success, but under the small-batch threshold
}

func TestShouldRetain_BoundaryCases(t *testing.T) {
	// 50 items at 98% success: below the 99% threshold, retained for investigation.
	assert.True(t, ShouldRetain(50, 49))
	// 100 items at 99% success: meets the threshold, deleted.
	assert.False(t, ShouldRetain(100, 99))
	// Empty batch: nothing to retain.
	assert.False(t, ShouldRetain(0, 0))
}

func TestBatchStatus_IsTerminal(t *testing.T) {
	assert.True(t, BatchCompleted.IsTerminal())
	assert.True(t, BatchFailed.IsTerminal())
	assert.True(t, BatchExpired.IsTerminal())
	assert.True(t, BatchCancelled.IsTerminal())
	assert.False(t, BatchInProgress.IsTerminal())
	assert.False(t, BatchValidating.IsTerminal())
}

func TestBatchStatus_IsTerminalFailure(t *testing.T) {
	assert.False(t, BatchCompleted.IsTerminalFailure())
	assert.True(t, BatchFailed.IsTerminalFailure())
	assert.True(t, BatchExpired.IsTerminalFailure())
	assert.True(t, BatchCancelled.IsTerminalFailure())
}
