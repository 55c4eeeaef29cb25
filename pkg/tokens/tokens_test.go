package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	c := NewCounter()

	assert.Zero(t, c.Count(""))
	assert.Greater(t, c.Count("Officers responded to a disturbance call."), 0)

	short := c.Count("one two three")
	long := c.Count("one two three four five six seven eight nine ten")
	assert.Greater(t, long, short)
}

func TestApproximate(t *testing.T) {
	assert.Zero(t, approximate(""))
	assert.Zero(t, approximate("   \n\t "))
	assert.Equal(t, 1, approximate("word"))
	assert.Equal(t, 4, approximate("one two three"))
	assert.Equal(t, 8, approximate("one two three four five six"))
}
