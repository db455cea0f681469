package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeConfig writes a minimal config using a sqlite store in a temp dir and
// returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "servicetrack.yaml")
	content := "api:\n" +
		"  base_url: http://127.0.0.1:1\n" +
		"viewer:\n" +
		"  id: u-cust\n" +
		"store:\n" +
		"  driver: sqlite\n" +
		"  path: " + filepath.Join(dir, "st.db") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "st dev") {
		t.Errorf("expected output to contain 'st dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	for _, want := range []string{"st 1.0.0", "commit: abc123", "built: 2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := runCmd(t, "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	if !strings.Contains(out, "servicetrack") {
		t.Errorf("expected help output to mention servicetrack, got: %s", out)
	}
	for _, sub := range []string{"version", "track", "send", "cache"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q subcommand, got: %s", sub, out)
		}
	}
}

func TestRootCmdNoArgs(t *testing.T) {
	out, err := runCmd(t)
	if err != nil {
		t.Fatalf("root command with no args failed: %v", err)
	}
	if !strings.Contains(out, "Usage") {
		t.Errorf("expected usage output, got: %s", out)
	}
}

func TestExecute_ReturnsExitCode(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"no-such-command"})
	if code := execute(cmd); code != 1 {
		t.Errorf("execute = %d, want 1", code)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v, want load config error", err)
	}
}

func TestNewAPIClient_RequiresViewer(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	cfg.Viewer.ID = ""
	if _, err := newAPIClient(cfg); err == nil || !strings.Contains(err.Error(), "viewer id") {
		t.Errorf("err = %v, want viewer id error", err)
	}
}

func TestDefaultFix(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	f := defaultFix(cfg)
	if f.Point.Lat != cfg.Location.DefaultLat || f.Label != cfg.Location.DefaultLabel {
		t.Errorf("defaultFix = %+v", f)
	}
	if !f.Valid() {
		t.Error("default fix should be valid")
	}
}
