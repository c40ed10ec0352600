package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Wiring(t *testing.T) {
	assert.Equal(t, "travelbook", rootCmd.Use)
	assert.Contains(t, rootCmd.Long, "driving routes")

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "import", "status"} {
		require.True(t, names[want], "missing subcommand %q", want)
	}
}
