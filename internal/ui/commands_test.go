package ui

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openworker/internal/tools"
)

type memFolders struct {
	paths []string
	err   error
}

func (f *memFolders) ListFolders() ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.paths...), nil
}

func (f *memFolders) AddFolder(path string) error {
	for _, p := range f.paths {
		if p == path {
			return nil
		}
	}
	f.paths = append(f.paths, path)
	return nil
}

func (f *memFolders) RemoveFolder(path string) error {
	out := f.paths[:0]
	for _, p := range f.paths {
		if p != path {
			out = append(out, p)
		}
	}
	f.paths = out
	return nil
}

type recordingSession struct{ updates [][]string }

func (s *recordingSession) UpdateFolders(folders []string) {
	s.updates = append(s.updates, folders)
}

type fixedServers []tools.ProviderInfo

func (s fixedServers) Providers() []tools.ProviderInfo { return s }

func newCommands() (*Commands, *memFolders, *recordingSession) {
	f := &memFolders{}
	s := &recordingSession{}
	return &Commands{Folders: f, Session: s}, f, s
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand(`\help`))
	assert.True(t, IsCommand(`  \add /tmp`))
	assert.False(t, IsCommand(`\`))
	assert.False(t, IsCommand(`\   `))
	assert.False(t, IsCommand("what is in my notes?"))
	assert.False(t, IsCommand("/clear"))
}

func TestCommands_Help(t *testing.T) {
	c, _, _ := newCommands()
	res := c.Run(`\help`)
	assert.False(t, res.Err)
	for _, name := range []string{`\add`, `\rm`, `\folders`, `\list_servers`, `\clear`} {
		assert.Contains(t, res.Output, name)
	}
}

func TestCommands_AddCanonicalizes(t *testing.T) {
	c, f, s := newCommands()
	dir := t.TempDir()
	canonical, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	res := c.Run(`\add ` + filepath.Join(dir, "sub", ".."))
	require.False(t, res.Err, res.Output)
	assert.Equal(t, "Added "+canonical, res.Output)
	assert.Equal(t, []string{canonical}, f.paths)
	require.Len(t, s.updates, 1)
	assert.Equal(t, []string{canonical}, s.updates[0])
}

func TestCommands_AddRejectsMissingAndFiles(t *testing.T) {
	c, f, s := newCommands()
	dir := t.TempDir()

	res := c.Run(`\add ` + filepath.Join(dir, "missing"))
	assert.True(t, res.Err)

	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	res = c.Run(`\add ` + file)
	assert.True(t, res.Err)
	assert.Contains(t, res.Output, "is not a directory")

	res = c.Run(`\add`)
	assert.True(t, res.Err)
	assert.Equal(t, `Usage: \add <path>`, res.Output)

	assert.Empty(t, f.paths)
	assert.Empty(t, s.updates)
}

func TestCommands_RemoveAndList(t *testing.T) {
	c, f, s := newCommands()
	dir := t.TempDir()
	canonical, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	f.paths = []string{canonical, "/gone/folder"}

	res := c.Run(`\folders`)
	assert.Equal(t, "Tracked Folders:\n- "+canonical+"\n- /gone/folder", res.Output)

	res = c.Run(`\rm ` + dir)
	require.False(t, res.Err)
	assert.Equal(t, "Removed "+canonical, res.Output)
	assert.Equal(t, []string{"/gone/folder"}, f.paths)

	res = c.Run(`\rm /gone/folder`)
	require.False(t, res.Err)
	assert.Empty(t, f.paths)
	require.Len(t, s.updates, 2)
	assert.Empty(t, s.updates[1])

	res = c.Run(`\folders`)
	assert.Equal(t, "Tracked Folders: none", res.Output)
}

func TestCommands_FolderStoreError(t *testing.T) {
	c, f, _ := newCommands()
	f.err = errors.New("database is locked")

	res := c.Run(`\folders`)
	assert.True(t, res.Err)
	assert.Contains(t, res.Output, "database is locked")
}

func TestCommands_ListServers(t *testing.T) {
	c, _, _ := newCommands()
	assert.Equal(t, "Connected Servers: none", c.Run(`\list_servers`).Output)

	c.Servers = fixedServers{{Name: "openworker", Tools: 6}, {Name: "github", Tools: 2}}
	assert.Equal(t, "Connected Servers:\n- openworker (6 tools)\n- github (2 tools)", c.Run(`\list_servers`).Output)
}

func TestCommands_ClearAndUnknown(t *testing.T) {
	c, _, _ := newCommands()
	assert.True(t, c.Run(`\clear`).Clear)

	res := c.Run(`\frobnicate now`)
	assert.True(t, res.Err)
	assert.Equal(t, "Unknown command: frobnicate", res.Output)
}
