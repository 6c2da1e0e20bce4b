package textindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"high", "cpu", "deployment", "controller"}, Terms("High CPU on the deployment-controller, high CPU!"))
	assert.Empty(t, Terms("a to the"))
	assert.Equal(t, []string{"oomkilled", "5m"}, Terms("OOMKilled [5m]"))
}
