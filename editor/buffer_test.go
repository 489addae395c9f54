package editor_test

import (
	"testing"

	"github.com/ggoodman/editor-mcp-go/editor"
)

func TestBuffer_CursorIsOneBasedAndClamped(t *testing.T) {
	b := editor.NewBuffer("", "alpha\nbeta\ngamma")

	if r, c := b.Cursor(); r != 1 || c != 1 {
		t.Fatalf("want initial cursor 1,1 got %d,%d", r, c)
	}
	cases := []struct {
		name             string
		row, col         int
		wantRow, wantCol int
	}{
		{"inside", 2, 3, 2, 3},
		{"end of line", 2, 5, 2, 5},
		{"past line end", 1, 99, 1, 6},
		{"past last row", 9, 1, 3, 1},
		{"zero", 0, 0, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotRow, gotCol := b.SetCursor(tc.row, tc.col)
			if gotRow != tc.wantRow || gotCol != tc.wantCol {
				t.Fatalf("want %d,%d got %d,%d", tc.wantRow, tc.wantCol, gotRow, gotCol)
			}
		})
	}
}

func TestBuffer_SelectAndInsert(t *testing.T) {
	b := editor.NewBuffer("/tmp/x.txt", "hello world\nsecond")

	b.Select(1, 7, 1, 12)
	if got := b.SelectedText(); got != "world" {
		t.Fatalf("want selection %q got %q", "world", got)
	}

	b.Insert("there")
	if got := b.Text(); got != "hello there\nsecond" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := b.SelectedText(); got != "" {
		t.Fatalf("want empty selection after insert, got %q", got)
	}
	if r, c := b.Cursor(); r != 1 || c != 12 {
		t.Fatalf("want cursor after inserted text at 1,12 got %d,%d", r, c)
	}
	if !b.Dirty() {
		t.Fatal("want dirty after insert")
	}
}

func TestBuffer_ReversedSelection(t *testing.T) {
	b := editor.NewBuffer("", "abc\ndef")
	b.Select(2, 2, 1, 2)
	if got := b.SelectedText(); got != "bc\nd" {
		t.Fatalf("want %q got %q", "bc\nd", got)
	}
}

func TestBuffer_MultilineInsertMovesCursor(t *testing.T) {
	b := editor.NewBuffer("", "")
	if got := b.LineCount(); got != 1 {
		t.Fatalf("want 1 line for empty buffer, got %d", got)
	}
	b.Insert("one\ntwo\nthree")
	if got := b.LineCount(); got != 3 {
		t.Fatalf("want 3 lines got %d", got)
	}
	if r, c := b.Cursor(); r != 3 || c != 6 {
		t.Fatalf("want cursor 3,6 got %d,%d", r, c)
	}
}

func TestBuffer_RuneColumns(t *testing.T) {
	b := editor.NewBuffer("", "héllo")
	b.Select(1, 2, 1, 4)
	if got := b.SelectedText(); got != "él" {
		t.Fatalf("want %q got %q", "él", got)
	}
}
