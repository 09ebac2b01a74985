package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kubedeck/internal/tools/tooltest"
)

func TestCheckMutatingOperation(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		f := tooltest.New(t)
		assert.Nil(t, CheckMutatingOperation(f.SC, "delete"))
	})

	t.Run("blocked in read-only mode", func(t *testing.T) {
		f := tooltest.New(t, tooltest.ReadOnly())

		for op, want := range map[string]string{
			"delete":       "Delete operations are not allowed in read-only mode",
			"port-forward": "Port-Forward operations are not allowed in read-only mode",
		} {
			result := CheckMutatingOperation(f.SC, op)
			require.NotNil(t, result, op)
			assert.True(t, result.IsError)
			assert.Equal(t, want, tooltest.Text(t, result))
		}
	})
}
