package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()
	require.NotEmpty(t, id)
	assert.Len(t, strings.Split(id, "-"), 5, "expected a uuid-shaped id")
}

func TestNewTaskID(t *testing.T) {
	sess := NewID()
	task := NewTaskID(sess)
	assert.True(t, strings.HasPrefix(task, sess+"/"))
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abcdefgh", Short("abcdefgh12345678"))
	assert.Equal(t, "abc", Short("abc"))
	assert.Equal(t, "", Short(""))
}
