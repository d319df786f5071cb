package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "bgvsync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotNil(t, rootCmd.PersistentPreRunE)
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	expected := []string{"serve", "login", "run", "fetch", "sheets", "sessions"}

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range expected {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}
