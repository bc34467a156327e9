package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "inkwell", cmd.Use)
	assert.Contains(t, cmd.Long, "blogging client")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"signin"}, {"signout"}, {"whoami"}, {"register"},
		{"list"}, {"show"}, {"like"}, {"create"}, {"serve"},
		{"comment", "add"}, {"comment", "rm"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("data-dir"))
}

func TestListCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	listCmd, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)

	searchFlag := listCmd.Flags().Lookup("search")
	require.NotNil(t, searchFlag)
	assert.Equal(t, "s", searchFlag.Shorthand)
	assert.Contains(t, listCmd.Long, "Tags are matched as stored")
}

func TestCreateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"create"})
	require.NoError(t, err)

	for _, name := range []string{"title", "body", "body-file", "tags", "category", "image"} {
		assert.NotNil(t, createCmd.Flags().Lookup(name), name)
	}
	assert.Contains(t, createCmd.Long, "Web Development")
}

func TestRegisterCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	registerCmd, _, err := cmd.Find([]string{"register"})
	require.NoError(t, err)
	assert.NotNil(t, registerCmd.Flags().Lookup("name"))
	assert.NotNil(t, registerCmd.Flags().Lookup("email"))
}
