package editor_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/editor"
)

func TestWatcher_CreateInvalidatesAndNotifies(t *testing.T) {
	root := t.TempDir()
	ws := editor.NewWorkspace(editor.WithRoots(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	w := editor.NewWatcher(ws, func(context.Context) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, editor.WithDebounce(20*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if files, _ := ws.ProjectFiles(ctx); len(files) != 0 {
		t.Fatalf("want empty listing, got %v", files)
	}

	// The watch may not be registered yet; keep creating files until one
	// is observed.
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%d.txt", i)), "")
		select {
		case <-changed:
		case <-time.After(200 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("timeout waiting for change notification")
		}
		break
	}

	files, err := ws.ProjectFiles(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("want listing refreshed after change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
