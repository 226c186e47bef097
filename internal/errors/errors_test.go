package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromRegistry(t *testing.T) {
	e := New("E121")
	assert.Equal(t, CategoryConfig, e.Category)
	assert.Equal(t, "Configuration file not found", e.Message)
	assert.NotEmpty(t, e.Suggestion)

	unknown := New("E999")
	assert.Equal(t, "Unknown error", unknown.Message)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "E122: Invalid configuration value: bad port",
		New("E122").WithDetail("bad port").Error())
	assert.Equal(t, "E120: Failed to read configuration: file does not exist",
		New("E120").Wrap(fs.ErrNotExist).Error())
	assert.Equal(t, "listening on 3", Newf(CategoryServer, "listening on %d", 3).Error())
}

func TestUnwrapAndCodes(t *testing.T) {
	err := fmt.Errorf("serve: %w", New("E160").Wrap(fs.ErrPermission))

	assert.True(t, stderrors.Is(err, fs.ErrPermission))
	assert.True(t, HasCode(err, "E160"))
	assert.False(t, HasCode(err, "E161"))

	assert.Same(t, FromError(err, "E141"), FromError(err, "E999"))
	assert.Nil(t, FromError(nil, "E141"))

	wrapped := FromError(fs.ErrClosed, "E141")
	assert.Equal(t, "E141", wrapped.Code)
	assert.ErrorIs(t, wrapped, fs.ErrClosed)
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	out := New("E122").WithDetail("server.addr \"x\" has no port").WithSuggestion("Use host:port").Format()
	assert.Contains(t, out, "ERROR E122: Invalid configuration value")
	assert.Contains(t, out, "  server.addr \"x\" has no port")
	assert.Contains(t, out, "Hint: Use host:port")

	var buf bytes.Buffer
	Fprint(&buf, stderrors.New("plain"))
	assert.Equal(t, "\nERROR: plain\n\n", buf.String())
}

func TestWrapText(t *testing.T) {
	lines := wrapText("aaa bbb ccc ddd", 7)
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"aaa bbb", "ccc ddd"}, lines)
}
