package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesOwnerRecord(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, FileName) {
		t.Errorf("unexpected lock path %q", lock.Path())
	}
	data, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if !strings.HasPrefix(string(data), fmt.Sprintf("pid=%d ", os.Getpid())) {
		t.Errorf("lock file should record our pid, got %q", data)
	}
}

func TestAcquireCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestAcquireWhileHeld(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	second, err := Acquire(dir)
	if err == nil {
		second.Release()
		t.Fatal("second Acquire should fail while the lock is held")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected *HeldError, got %T: %v", err, err)
	}
	if !strings.Contains(held.Owner, fmt.Sprintf("pid %d (running)", os.Getpid())) {
		t.Errorf("owner should name the running holder, got %q", held.Owner)
	}
	if held.Unwrap() == nil {
		t.Error("HeldError should wrap the flock error")
	}

	// The failed attempt must not clobber the holder's record.
	data, _ := os.ReadFile(first.Path())
	if !strings.HasPrefix(string(data), fmt.Sprintf("pid=%d ", os.Getpid())) {
		t.Errorf("holder record was modified: %q", data)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after release")
	}

	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	again.Release()
}

func TestReleaseNilLock(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("Release on nil lock returned %v", err)
	}
}

func TestOwnerPID(t *testing.T) {
	cases := map[string]int{
		"pid=123 started=2026-01-01T00:00:00Z\n": 123,
		"pid=42\n":                               42,
		"started=x pid=7":                        7,
		"pid=abc":                                0,
		"garbage":                                0,
		"":                                       0,
	}
	for in, want := range cases {
		if got := ownerPID(in); got != want {
			t.Errorf("ownerPID(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDescribeOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	if got := describeOwner(path); got != "" {
		t.Errorf("missing file should describe no owner, got %q", got)
	}
	os.WriteFile(path, []byte("legacy-owner\n"), 0644)
	if got := describeOwner(path); got != "legacy-owner" {
		t.Errorf("unparseable record should be returned verbatim, got %q", got)
	}
	os.WriteFile(path, []byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0644)
	if got := describeOwner(path); !strings.Contains(got, "running") {
		t.Errorf("expected running owner, got %q", got)
	}
}
