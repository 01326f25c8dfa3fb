package migrations

import (
	"context"
	"io/fs"
	"testing"
)

func TestFilesystemsResolveBothDialects(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("Filesystems failed: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected postgres and sqlite filesystems, got %d", len(filesystems))
	}
	for _, fsys := range filesystems {
		matches, globErr := fs.Glob(fsys.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", fsys.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("%s filesystem has no up migrations", fsys.Dialect)
		}
	}
}

func TestRegisterFiltersByValidationTarget(t *testing.T) {
	var registered []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, fsys fs.FS) error {
		if label != "go-tokengate" {
			t.Fatalf("unexpected source label %q", label)
		}
		if fsys == nil {
			t.Fatalf("nil filesystem for %s", dialect)
		}
		registered = append(registered, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if len(registered) != 1 || registered[0] != DialectSQLite {
		t.Fatalf("expected only sqlite to register, got %v", registered)
	}
}

func TestRegisterRequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected nil register func to be rejected")
	}
}
