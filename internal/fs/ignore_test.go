package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log", "/"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.log", "archive/2019", "tmp/"})
		if m.patterns[0].matchPath || m.patterns[0].dirOnly {
			t.Error("*.log should be a plain basename pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("archive/2019 should be a path pattern")
		}
		if !m.patterns[2].dirOnly || m.patterns[2].matchPath || m.patterns[2].pattern != "tmp" {
			t.Errorf("tmp/ parsed as %+v, want basename directory pattern tmp", m.patterns[2])
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		isDir        bool
		want         bool
	}{
		{
			name:         "basename glob matches file in root",
			patterns:     []string{"*.tmp"},
			relativePath: "report.tmp",
			want:         true,
		},
		{
			name:         "basename glob matches file in subdirectory",
			patterns:     []string{"~$*"},
			relativePath: filepath.Join("finance", "~$budget.xlsx"),
			want:         true,
		},
		{
			name:         "basename glob does not match different extension",
			patterns:     []string{"*.tmp"},
			relativePath: "report.pdf",
			want:         false,
		},
		{
			name:         "ignore file itself",
			patterns:     []string{IgnoreFileName},
			relativePath: IgnoreFileName,
			want:         true,
		},
		{
			name:         "path pattern matches exact relative path",
			patterns:     []string{"archive/2019"},
			relativePath: filepath.Join("archive", "2019"),
			isDir:        true,
			want:         true,
		},
		{
			name:         "path pattern does not match wrong path",
			patterns:     []string{"archive/2019"},
			relativePath: filepath.Join("current", "2019"),
			isDir:        true,
			want:         false,
		},
		{
			name:         "leading slash anchors to root",
			patterns:     []string{"/drafts/*.txt"},
			relativePath: filepath.Join("drafts", "a.txt"),
			want:         true,
		},
		{
			name:         "directory pattern matches directory",
			patterns:     []string{"node_modules/"},
			relativePath: filepath.Join("web", "node_modules"),
			isDir:        true,
			want:         true,
		},
		{
			name:         "directory pattern ignores files of the same name",
			patterns:     []string{"backup/"},
			relativePath: "backup",
			want:         false,
		},
		{
			name:         "character class",
			patterns:     []string{"*.[ct]sv"},
			relativePath: "rows.tsv",
			want:         true,
		},
		{
			name:         "malformed pattern never matches",
			patterns:     []string{"[a-"},
			relativePath: "a.txt",
			want:         false,
		},
		{
			name:         "no patterns matches nothing",
			relativePath: "anything.txt",
			want:         false,
		},
		{
			name:         "empty path",
			patterns:     []string{"*"},
			relativePath: "",
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath, tt.isDir); got != tt.want {
				t.Errorf("Match(%q, %v) = %v, want %v", tt.relativePath, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads raw lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		content := "*.tmp\n# comment\n\nscratch/\narchive/2019\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}
		if m := NewIgnoreMatcher(patterns); len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}
