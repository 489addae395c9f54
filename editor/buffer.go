package editor

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Position is a zero-based row and rune column inside a Buffer.
type Position struct {
	Row    int
	Column int
}

// Buffer is an in-memory text document with a cursor and an optional
// selection. Positions handed to and returned from the exported methods are
// 1-based; they are clamped into the document.
type Buffer struct {
	mu     sync.Mutex
	path   string
	text   string
	cursor Position
	// anchor is the other end of the selection; equal to cursor when
	// nothing is selected.
	anchor Position
	dirty  bool
}

// NewBuffer returns a buffer holding text. An empty path denotes an untitled
// buffer.
func NewBuffer(path, text string) *Buffer {
	return &Buffer{path: path, text: text}
}

func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Dirty reports whether the buffer was modified since it was loaded or saved.
func (b *Buffer) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// LineCount returns the number of lines; an empty buffer has one line.
func (b *Buffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.text, "\n") + 1
}

// Cursor returns the 1-based cursor position.
func (b *Buffer) Cursor() (row, column int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor.Row + 1, b.cursor.Column + 1
}

// SetCursor moves the cursor and clears the selection. It returns the
// clamped 1-based position.
func (b *Buffer) SetCursor(row, column int) (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.clamp(row-1, column-1)
	b.cursor, b.anchor = p, p
	return p.Row + 1, p.Column + 1
}

// Select selects the text between two 1-based positions. The cursor ends up
// at the end position.
func (b *Buffer) Select(startRow, startColumn, endRow, endColumn int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anchor = b.clamp(startRow-1, startColumn-1)
	b.cursor = b.clamp(endRow-1, endColumn-1)
}

// SelectedText returns the selected text, or "" when nothing is selected.
func (b *Buffer) SelectedText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, end := b.selectionOffsets()
	return b.text[start:end]
}

// Insert replaces the selection (if any) with text, or inserts text at the
// cursor. The cursor is left after the inserted text.
func (b *Buffer) Insert(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, end := b.selectionOffsets()
	b.text = b.text[:start] + text + b.text[end:]
	p := b.positionAt(start + len(text))
	b.cursor, b.anchor = p, p
	b.dirty = true
}

// Replace swaps the whole document and moves the cursor to the start.
func (b *Buffer) Replace(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.cursor, b.anchor = Position{}, Position{}
	b.dirty = true
}

func (b *Buffer) markSaved(path string) {
	b.mu.Lock()
	b.path = path
	b.dirty = false
	b.mu.Unlock()
}

func (b *Buffer) lines() []string { return strings.Split(b.text, "\n") }

func (b *Buffer) clamp(row, column int) Position {
	lines := b.lines()
	row = max(0, min(row, len(lines)-1))
	column = max(0, min(column, utf8.RuneCountInString(lines[row])))
	return Position{Row: row, Column: column}
}

func (b *Buffer) offsetOf(p Position) int {
	lines := b.lines()
	off := 0
	for i := 0; i < p.Row; i++ {
		off += len(lines[i]) + 1
	}
	line := lines[p.Row]
	col := 0
	for i := range line {
		if col == p.Column {
			return off + i
		}
		col++
	}
	return off + len(line)
}

func (b *Buffer) positionAt(offset int) Position {
	before := b.text[:offset]
	row := strings.Count(before, "\n")
	lineStart := strings.LastIndexByte(before, '\n') + 1
	return Position{Row: row, Column: utf8.RuneCountInString(before[lineStart:])}
}

func (b *Buffer) selectionOffsets() (int, int) {
	a, c := b.offsetOf(b.anchor), b.offsetOf(b.cursor)
	if a > c {
		a, c = c, a
	}
	return a, c
}
