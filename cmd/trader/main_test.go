package main

import "testing"

func TestConfigDirFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"scan"}, ""},
		{[]string{"--config", "/tmp/a", "scan"}, "/tmp/a"},
		{[]string{"scan", "--config=/tmp/b"}, "/tmp/b"},
		{[]string{"--config"}, ""},
		{[]string{"--", "--config", "/tmp/c"}, ""},
	}
	for _, tt := range tests {
		if got := configDirFromArgs(tt.args); got != tt.want {
			t.Errorf("configDirFromArgs(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
