package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestHelpExitsZeroWithoutDatabase re-executes the test binary as the CLI
// so the os.Exit paths of help handling can be observed. Help must succeed
// with no reachable database: -db-url points at a closed port and would
// fail any connection attempt.
func TestHelpExitsZeroWithoutDatabase(t *testing.T) {
	if args := os.Getenv("HISTOPS_RUN_MAIN"); args != "" {
		os.Args = append([]string{"histops"}, strings.Split(args, " ")...)
		main()
		return
	}

	tests := []struct {
		name string
		args string
		want string
	}{
		{"top-level help", "help", "USAGE:"},
		{"top-level help flag", "--help", "COMMANDS:"},
		{"cleanup help", "cleanup --help --db-url postgres://nobody@127.0.0.1:1/none", "analyze-only"},
		{"backup help", "backup -h", "retention-days"},
		{"monitor help", "monitor --help", "listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run", "TestHelpExitsZeroWithoutDatabase")
			cmd.Env = append(os.Environ(),
				"HISTOPS_RUN_MAIN="+tt.args,
				"HISTOPS_CONFIG=", "HISTOPS_DB_URL=")
			out, err := cmd.CombinedOutput()
			if err != nil {
				t.Fatalf("help invocation %q exited nonzero: %v\n%s", tt.args, err, out)
			}
			if !strings.Contains(string(out), tt.want) {
				t.Errorf("help output for %q missing %q:\n%s", tt.args, tt.want, out)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("HISTOPS_TEST_STR", "value")
	t.Setenv("HISTOPS_TEST_INT", "42")
	t.Setenv("HISTOPS_TEST_BOOL", "true")
	t.Setenv("HISTOPS_TEST_BAD_INT", "nope")

	if got := getEnv("HISTOPS_TEST_STR", "fallback"); got != "value" {
		t.Errorf("getEnv = %q, want value", got)
	}
	if got := getEnv("HISTOPS_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("getEnv unset = %q, want fallback", got)
	}
	if got := getEnvInt("HISTOPS_TEST_INT", 7); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}
	if got := getEnvInt("HISTOPS_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt bad value = %d, want fallback 7", got)
	}
	if got := getEnvBool("HISTOPS_TEST_BOOL", false); !got {
		t.Error("getEnvBool = false, want true")
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"historian", []string{"historian"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{",,a,", []string{"a"}},
	}

	for _, tt := range tests {
		got := splitList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Backup.RetentionDays != 14 {
		t.Errorf("retention days = %d, want default 14", cfg.Backup.RetentionDays)
	}
}

func TestLoadConfigPicksUpConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "histops.yaml")
	if err := os.WriteFile(path, []byte("backup:\n  retentionDays: 3\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := loadConfig([]string{"--config", path, "--db-url", "postgres://x"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Backup.RetentionDays != 3 {
		t.Errorf("retention days = %d, want 3 from file", cfg.Backup.RetentionDays)
	}
}
