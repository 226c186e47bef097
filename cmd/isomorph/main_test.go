package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/internal/errors"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestInitBuildRender(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, run(t, "init", "-C", dir))
	for _, name := range []string{"isomorph.json", ".env.example", "public/counter.css", "public/race.css"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	err := run(t, "init", "-C", dir)
	assert.True(t, errors.HasCode(err, "E122"), "second init: %v", err)

	require.NoError(t, run(t, "build", "-C", dir))
	assert.FileExists(t, filepath.Join(dir, "dist", "manifest.json"))

	out := filepath.Join(dir, "counter.html")
	require.NoError(t, run(t, "render", "counter", "-C", dir, "--state", `{"count": 41}`, "-o", out))

	page, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`class="count"[^>]*>41<`), string(page))
	assert.Regexp(t, regexp.MustCompile(`/pkg/counter\.[0-9a-f]{8}\.css`), string(page))
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()

	err := run(t, "render", "nope", "-C", dir, "-o", filepath.Join(dir, "x.html"))
	assert.True(t, errors.HasCode(err, "E140"), "unknown app: %v", err)

	err = run(t, "render", "counter", "-C", dir, "--state", "[1]", "-o", filepath.Join(dir, "x.html"))
	assert.True(t, errors.HasCode(err, "E141"), "bad state: %v", err)
}

func TestInitUnknownTemplate(t *testing.T) {
	err := run(t, "init", "-C", t.TempDir(), "--template", "nope")
	assert.True(t, errors.HasCode(err, "E144"), "%v", err)
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Version    dev")
	assert.Regexp(t, `counter\s+/\s+Increment`, out.String())
	assert.Regexp(t, `race\s+/race\s+`, out.String())

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}
