package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxFileBytes = 200 * 1024

var languages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".rs":    "rust",
	".cpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".md":    "markdown",
	".rst":   "rst",
	".txt":   "text",
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".venv": true,
	"venv": true, "env": true, ".env": true, "dist": true, "build": true,
	".next": true, "coverage": true, ".pytest_cache": true, ".mypy_cache": true,
	"vendor": true, "_examples": true,
}

// File is a source or documentation file inside a checkout
type File struct {
	Path     string `json:"path"` // slash separated, relative to the checkout
	Language string `json:"language"`
	Size     int64  `json:"size"`
}

// IsDoc reports whether the file is documentation rather than code
func (f File) IsDoc() bool {
	switch f.Language {
	case "markdown", "rst", "text":
		return true
	}
	return false
}

// LanguageFor maps a file path to its language, or "" when not indexed
func LanguageFor(path string) string {
	return languages[strings.ToLower(filepath.Ext(path))]
}

// ListFiles walks a checkout and returns indexable files in path order
func ListFiles(dir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		lang := LanguageFor(p)
		if lang == "" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 || info.Size() > maxFileBytes {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Language: lang, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile reads a file of a checkout by its relative path
func ReadFile(dir, rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

var interestingPatterns = []string{
	"main", "index", "app", "server", "api", "routes", "handler",
	"controller", "service", "core", "engine", "utils", "helpers",
}

// InterestingFiles ranks code files likely to show what a project does
func InterestingFiles(files []File, limit int) []File {
	type scored struct {
		file  File
		score int
	}
	var candidates []scored
	for _, f := range files {
		if f.IsDoc() {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path)))
		score := 0
		for _, pattern := range interestingPatterns {
			if strings.Contains(base, pattern) {
				score += 10
			}
		}
		score -= 2 * strings.Count(f.Path, "/")
		switch f.Language {
		case "go", "python", "typescript", "javascript":
			score += 5
		}
		if strings.HasSuffix(base, "_test") || strings.HasPrefix(base, "test_") {
			score -= 10
		}
		candidates = append(candidates, scored{f, score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].file.Path < candidates[j].file.Path
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]File, len(candidates))
	for i, c := range candidates {
		out[i] = c.file
	}
	return out
}

// Analysis summarises a checkout for highlights mode
type Analysis struct {
	FileCount     int            `json:"file_count"`
	HasReadme     bool           `json:"has_readme"`
	HasTests      bool           `json:"has_tests"`
	Languages     map[string]int `json:"languages"`
	RecentCommits int            `json:"recent_commits"`
	Score         int            `json:"score"`
}

// Analyze scores how much there is to talk about in a repository
func Analyze(files []File, recentCommits int) Analysis {
	a := Analysis{
		FileCount:     len(files),
		Languages:     make(map[string]int),
		RecentCommits: recentCommits,
	}
	for _, f := range files {
		a.Languages[f.Language]++
		lower := strings.ToLower(f.Path)
		if strings.HasPrefix(filepath.Base(lower), "readme") {
			a.HasReadme = true
		}
		if strings.Contains(lower, "test") {
			a.HasTests = true
		}
	}

	a.Score = min(recentCommits*10, 40)
	switch {
	case a.FileCount > 50:
		a.Score += 20
	case a.FileCount > 10:
		a.Score += 10
	}
	if a.HasReadme {
		a.Score += 10
	}
	if a.HasTests {
		a.Score += 10
	}
	return a
}
