package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForChange(t *testing.T, changes <-chan Change, want ChangeType, name string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case change, ok := <-changes:
			require.True(t, ok, "channel closed before %s event", want)
			if change.Type == want && filepath.Base(change.Path) == name {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s %s", want, name)
		}
	}
}

func TestWatcher_Watch(t *testing.T) {
	t.Run("reports created files", func(t *testing.T) {
		tempDir := t.TempDir()
		w := New(tempDir)
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(tempDir, "new-file.txt"), []byte("content"), 0o644))
		waitForChange(t, changes, ChangeCreated, "new-file.txt")
	})

	t.Run("reports deletions", func(t *testing.T) {
		tempDir := t.TempDir()
		testFile := filepath.Join(tempDir, "to-delete.txt")
		require.NoError(t, os.WriteFile(testFile, []byte("delete me"), 0o644))

		w := New(tempDir)
		defer w.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		require.NoError(t, os.Remove(testFile))
		waitForChange(t, changes, ChangeDeleted, "to-delete.txt")
	})

	t.Run("watches new subdirectories", func(t *testing.T) {
		tempDir := t.TempDir()
		w := New(tempDir)
		defer w.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := w.Watch(ctx)
		require.NoError(t, err)

		sub := filepath.Join(tempDir, "reports")
		require.NoError(t, os.Mkdir(sub, 0o755))
		// Give the loop a moment to add the new directory.
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(sub, "q3.md"), []byte("# Q3"), 0o644))
		waitForChange(t, changes, ChangeCreated, "q3.md")
	})

	t.Run("returns error for non-existent directory", func(t *testing.T) {
		changes, err := New("/non/existent/path").Watch(context.Background())
		assert.Error(t, err)
		assert.Nil(t, changes)
		assert.Contains(t, err.Error(), "root path error")
	})

	t.Run("closes channel when context is cancelled", func(t *testing.T) {
		w := New(t.TempDir())
		defer w.Close()
		ctx, cancel := context.WithCancel(context.Background())

		changes, err := w.Watch(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-changes:
			if ok {
				for range changes {
				}
			}
		case <-time.After(time.Second):
			t.Fatal("channel did not close after context cancellation")
		}
	})

	t.Run("returns error when closed", func(t *testing.T) {
		w := New(t.TempDir())
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())

		changes, err := w.Watch(context.Background())
		assert.Error(t, err)
		assert.Nil(t, changes)
		assert.Contains(t, err.Error(), "closed")
	})
}

func TestWatcher_Scan(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "sub", "b.md"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".hidden.txt"), []byte("h"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".git", "config"), []byte("g"), 0o644))

	files, err := New(tempDir).Scan()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(tempDir, "a.txt"),
		filepath.Join(tempDir, "sub", "b.md"),
	}, files)

	_, err = New(filepath.Join(tempDir, "a.txt")).Scan()
	assert.Error(t, err)
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{".config/.cache/data", true},
		{"/a/.b/file", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{"file.hidden", false},
		{".", false},
		{"..", false},
		{"path/../file", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name         string
		setupFile    bool
		setupDir     bool
		setupHidden  bool
		operation    fsnotify.Op
		expectChange bool
		expectedType ChangeType
	}{
		{name: "create file event", setupFile: true, operation: fsnotify.Create, expectChange: true, expectedType: ChangeCreated},
		{name: "write file event", setupFile: true, operation: fsnotify.Write, expectChange: true, expectedType: ChangeUpdated},
		{name: "remove file event", operation: fsnotify.Remove, expectChange: true, expectedType: ChangeDeleted},
		{name: "rename file event", operation: fsnotify.Rename, expectChange: true, expectedType: ChangeDeleted},
		{name: "chmod file event - not handled", setupFile: true, operation: fsnotify.Chmod},
		{name: "create directory event - skipped", setupDir: true, operation: fsnotify.Create},
		{name: "hidden file create - skipped", setupHidden: true, operation: fsnotify.Create},
		{name: "hidden file remove - skipped", setupHidden: true, operation: fsnotify.Remove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Hidden root: events below it are still reported.
			tempDir := filepath.Join(t.TempDir(), ".inbox")
			require.NoError(t, os.Mkdir(tempDir, 0o755))

			var eventPath string
			switch {
			case tt.setupDir:
				eventPath = filepath.Join(tempDir, "testdir")
				require.NoError(t, os.Mkdir(eventPath, 0o755))
			case tt.setupHidden:
				eventPath = filepath.Join(tempDir, ".hidden.txt")
				if tt.operation != fsnotify.Remove {
					require.NoError(t, os.WriteFile(eventPath, []byte("hidden"), 0o644))
				}
			case tt.setupFile:
				eventPath = filepath.Join(tempDir, "test.txt")
				require.NoError(t, os.WriteFile(eventPath, []byte("content"), 0o644))
			default:
				eventPath = filepath.Join(tempDir, "removed.txt")
			}

			change := New(tempDir).handleFsEvent(fsnotify.Event{Name: eventPath, Op: tt.operation})

			if !tt.expectChange {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.expectedType, change.Type)
			assert.Equal(t, eventPath, change.Path)
		})
	}
}
