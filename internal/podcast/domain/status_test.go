package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

func TestCanTransition_ForwardChain(t *testing.T) {
	chain := []models.Status{
		models.PendingStatus,
		models.TranscribingStatus,
		models.ExtractingStatus,
		models.SlicingStatus,
		models.CompleteStatus,
	}

	for i := 0; i < len(chain)-1; i++ {
		assert.True(t, CanTransition(chain[i], chain[i+1]),
			"%s -> %s should be allowed", chain[i], chain[i+1])
	}

	// No skipping stages and no regressing.
	assert.False(t, CanTransition(models.PendingStatus, models.ExtractingStatus))
	assert.False(t, CanTransition(models.TranscribingStatus, models.CompleteStatus))
	assert.False(t, CanTransition(models.ExtractingStatus, models.TranscribingStatus))
	assert.False(t, CanTransition(models.SlicingStatus, models.PendingStatus))
}

func TestCanTransition_Failed(t *testing.T) {
	nonTerminal := []models.Status{
		models.PendingStatus,
		models.TranscribingStatus,
		models.ExtractingStatus,
		models.SlicingStatus,
	}
	for _, s := range nonTerminal {
		assert.True(t, CanTransition(s, models.FailedStatus), "%s -> failed should be allowed", s)
	}

	// complete is terminal
	assert.False(t, CanTransition(models.CompleteStatus, models.FailedStatus))
	assert.False(t, CanTransition(models.CompleteStatus, models.PendingStatus))

	// restart edge is the only way out of failed
	assert.True(t, CanTransition(models.FailedStatus, models.PendingStatus))
	assert.False(t, CanTransition(models.FailedStatus, models.TranscribingStatus))
	assert.False(t, CanTransition(models.FailedStatus, models.CompleteStatus))
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, ValidateTransition(models.PendingStatus, models.PendingStatus))
	require.NoError(t, ValidateTransition(models.PendingStatus, models.TranscribingStatus))

	err := ValidateTransition(models.CompleteStatus, models.PendingStatus)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "complete -> pending")
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(models.CompleteStatus))
	assert.True(t, Terminal(models.FailedStatus))
	assert.False(t, Terminal(models.PendingStatus))
	assert.False(t, Terminal(models.SlicingStatus))
}
