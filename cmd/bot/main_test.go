package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandsLifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "berrybot.db"))

	out, err := execute(t, "commands", "add", "hi", "hello {user}", "--channel", "#Foo", "--alias", "hey")
	require.NoError(t, err)
	assert.Contains(t, out, "saved !hi")

	out, err = execute(t, "commands", "list", "-c", "foo")
	require.NoError(t, err)
	assert.Contains(t, out, "!ping\tbuiltin")
	assert.Contains(t, out, "!hi\tcustom\thello {user}")

	_, err = execute(t, "commands", "add", "ping", "nope", "-c", "foo")
	require.Error(t, err)

	out, err = execute(t, "commands", "remove", "hi", "-c", "foo")
	require.NoError(t, err)
	assert.Contains(t, out, "removed !hi")

	_, err = execute(t, "commands", "remove", "hi", "-c", "foo")
	require.Error(t, err)
}

func TestCommandsRequireChannel(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "commands", "list")
	require.Error(t, err)
}

func TestModerationListsEmptyLog(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "berrybot.db"))

	out, err := execute(t, "moderation", "-n", "5")
	require.NoError(t, err)
	assert.Empty(t, out)
}
