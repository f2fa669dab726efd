package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestPathsCommandPrintsResolvedPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))

	out, err := execRoot(t, "paths")
	if err != nil {
		t.Fatalf("paths command error = %v", err)
	}
	for _, want := range []string{"config:", "data_dir:", "db:", "draftwork"} {
		if !strings.Contains(out, want) {
			t.Fatalf("paths output missing %q:\n%s", want, out)
		}
	}
}

func TestWatchRejectsInvalidItemID(t *testing.T) {
	if _, err := execRoot(t, "watch", "zero"); err == nil {
		t.Fatal("expected invalid item id error")
	}
	if _, err := execRoot(t, "watch", "-3"); err == nil {
		t.Fatal("expected invalid item id error")
	}
}

func TestWatchRequiresActor(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("DRAFTWORK_ACTOR", "")

	_, err := execRoot(t, "watch", "7")
	if err == nil || !strings.Contains(err.Error(), "actor") {
		t.Fatalf("error = %v, want actor requirement", err)
	}
}
