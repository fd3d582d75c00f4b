package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnEventReceivesRecordedLabels(t *testing.T) {
	svc := NewService()

	var got map[string]string
	svc.OnEvent("image.failed", func(labels map[string]string) { got = labels })

	svc.RecordEvent("image.failed", map[string]string{"device_id": "dev1", "error_code": "missing_chunks"})

	require.NotNil(t, got)
	assert.Equal(t, "dev1", got["device_id"])
	assert.Equal(t, "missing_chunks", got["error_code"])
}

func TestInvariantViolationReachesListeners(t *testing.T) {
	svc := NewService()

	calls := 0
	svc.OnEvent("invariant.violation", func(labels map[string]string) { calls++ })

	svc.RecordInvariantViolation("counter drift", map[string]string{"session_id": "ses1"})
	svc.RecordInvariantViolation("counter drift", map[string]string{"session_id": "ses2"})

	assert.Equal(t, 2, calls)
}

func TestListenersAreIndependentPerEvent(t *testing.T) {
	svc := NewService()

	var fired []string
	svc.OnEvent("image.failed", func(labels map[string]string) { fired = append(fired, "failed") })
	svc.OnEvent("image.completed", func(labels map[string]string) { fired = append(fired, "completed") })

	svc.RecordEvent("image.completed", map[string]string{})

	assert.Equal(t, []string{"completed"}, fired)
}
