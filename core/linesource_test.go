package core

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src LineSource) []string {
	t.Helper()
	var lines []string
	for {
		line, err := src.ReadLine("$ ")
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestScriptSource(t *testing.T) {
	src := NewScriptSource(strings.NewReader("one\r\n\ntwo\nno newline"))

	assert.Equal(t, []string{"one", "", "two", "no newline"}, readAll(t, src))
	assert.NoError(t, src.Close())
}

func TestSharedScriptSource(t *testing.T) {
	r := strings.NewReader("first\nleft for the child\n")
	src := NewSharedScriptSource(r)

	line, err := src.ReadLine("")
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "left for the child\n", string(rest))
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestScriptSourceClose(t *testing.T) {
	r := &closeRecorder{Reader: strings.NewReader("")}
	src := NewScriptSource(r)

	assert.Empty(t, readAll(t, src))
	require.NoError(t, src.Close())
	assert.True(t, r.closed)
}
