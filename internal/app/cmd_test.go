package app

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"empty defaults to serve", []string{}, CommandServe},
		{"nil defaults to serve", nil, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"ignores extra args", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_Unknown_ReturnsUsage(t *testing.T) {
	_, err := ParseCommand([]string{"fetch"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `"fetch"`) {
		t.Errorf("error should name the command, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "usage: clubhub") {
		t.Errorf("error should include usage, got %q", err.Error())
	}
}

func TestUsage_ListsAllCommands(t *testing.T) {
	usage := Usage()
	for _, c := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck} {
		if !strings.Contains(usage, string(c)) {
			t.Errorf("Usage() should list %q:\n%s", c, usage)
		}
	}
}
