package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"chat", "tool", "sessions", "bot", "heartbeat"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestChatCmdFlags(t *testing.T) {
	cmd := buildChatCmd()
	for _, flag := range []string{
		"session", "dev", "system", "toolloop", "steps", "maxSteps",
		"maxToolCalls", "maxOutputTokens", "yes", "json", "provider", "model",
	} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("chat flag %q not registered", flag)
		}
	}
}
