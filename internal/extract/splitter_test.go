package extract

import (
	"strings"
	"testing"
)

func TestNewSplitter(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
		wantErr       bool
	}{
		{"valid", 1000, 200, false},
		{"zero overlap", 10, 0, false},
		{"zero size", 0, 0, true},
		{"overlap equals size", 10, 10, true},
		{"negative overlap", 10, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.size, tt.overlap, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSplitter(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplitter_Split(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
		text          string
		want          []Piece
	}{
		{
			name: "short text is one piece",
			size: 100,
			text: "hello world",
			want: []Piece{{"hello world", 1, 1}},
		},
		{
			name: "words without overlap",
			size: 10,
			text: "aaaa bbbb cccc",
			want: []Piece{{"aaaa bbbb", 1, 1}, {"cccc", 1, 1}},
		},
		{
			name:    "words with overlap",
			size:    10,
			overlap: 4,
			text:    "aaaa bbbb cccc",
			want:    []Piece{{"aaaa bbbb", 1, 1}, {"bbbb cccc", 1, 1}},
		},
		{
			name: "lines carry their numbers",
			size: 12,
			text: "line one\nline two\nline three\n",
			want: []Piece{{"line one", 1, 1}, {"line two", 2, 2}, {"line three", 3, 3}},
		},
		{
			name: "paragraphs stay together when they fit",
			size: 100,
			text: "para one\nstill one\n\npara two",
			want: []Piece{{"para one\nstill one\n\npara two", 1, 4}},
		},
		{
			name: "unbroken text falls back to runes",
			size: 4,
			text: "abcdefghij",
			want: []Piece{{"abcd", 1, 1}, {"efgh", 1, 1}, {"ij", 1, 1}},
		},
		{
			name: "blank text yields nothing",
			size: 10,
			text: "\n\n   \n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.size, tt.overlap, nil)
			if err != nil {
				t.Fatalf("NewSplitter() error = %v", err)
			}
			got := s.Split(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Split()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitter_PiecesRespectSize(t *testing.T) {
	s, err := NewSplitter(50, 10, nil)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}
	text := strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 40)

	pieces := s.Split(text)
	if len(pieces) < 20 {
		t.Fatalf("Split() returned %d pieces, want at least 20", len(pieces))
	}
	for i, p := range pieces {
		if CharLength(p.Text) > 50 {
			t.Errorf("piece %d has length %d", i, CharLength(p.Text))
		}
		if p.FromLine < 1 || p.ToLine < p.FromLine || p.ToLine > 40 {
			t.Errorf("piece %d spans lines %d-%d", i, p.FromLine, p.ToLine)
		}
	}
	if pieces[len(pieces)-1].ToLine != 40 {
		t.Errorf("last piece ends at line %d, want 40", pieces[len(pieces)-1].ToLine)
	}
}

func TestTokenLength_UnknownEncoding(t *testing.T) {
	if _, err := TokenLength("no_such_encoding"); err == nil {
		t.Error("TokenLength() expected error for unknown encoding")
	}
}
