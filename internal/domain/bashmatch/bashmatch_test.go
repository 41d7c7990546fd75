package bashmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractsNameArgsAndSubcommand(t *testing.T) {
	commands, err := Parse("git commit -m \"wip\"")
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "git", commands[0].Name)
	assert.Equal(t, "commit", commands[0].Subcommand)
}

func TestBuildPatternUsesSubcommandWhenPresent(t *testing.T) {
	commands, err := Parse("git commit -m wip")
	require.NoError(t, err)
	assert.Equal(t, "git commit *", BuildPattern(commands[0]))

	commands, err = Parse("ls -la")
	require.NoError(t, err)
	assert.Equal(t, "ls *", BuildPattern(commands[0]))
}

func TestMatchesPatternWildcardSubcommand(t *testing.T) {
	commands, err := Parse("git push origin main")
	require.NoError(t, err)
	assert.True(t, MatchesPattern("git *", commands[0]))
	assert.True(t, MatchesPattern("git push *", commands[0]))
	assert.False(t, MatchesPattern("npm *", commands[0]))
}

func TestAnyMatchesRequiresEveryChainedCommandCovered(t *testing.T) {
	patterns := []string{"git *"}
	assert.True(t, AnyMatches("git status", patterns))
	assert.False(t, AnyMatches("git status && rm -rf /", patterns))

	patterns = []string{"git *", "rm *"}
	assert.True(t, AnyMatches("git status && rm -rf /tmp/x", patterns))
}

func TestAnyMatchesUniversalWildcard(t *testing.T) {
	assert.True(t, AnyMatches("anything goes here", []string{"*"}))
}
