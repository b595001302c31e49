// Package repocontext describes the repository a packet is generated into:
// its tech stack, a compact file tree and short summaries of key files.
package repocontext

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/util"
)

// Provider supplies the repository context once per run.
type Provider interface {
	Fetch(ctx context.Context) (*types.RepoContext, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (*types.RepoContext, error)

// Fetch calls f.
func (f ProviderFunc) Fetch(ctx context.Context) (*types.RepoContext, error) {
	return f(ctx)
}

// Static returns a Provider that always yields rc.
func Static(rc types.RepoContext) Provider {
	return ProviderFunc(func(context.Context) (*types.RepoContext, error) {
		out := rc
		return &out, nil
	})
}

const (
	defaultMaxSummaryChars = 2000
	defaultMaxSummaryLines = 40
	defaultMaxTreeEntries  = 40
)

// stackMarkers maps a top-level file name to the stack tag it implies.
var stackMarkers = map[string]string{
	"go.mod":           "go",
	"package.json":     "node",
	"tsconfig.json":    "typescript",
	"Cargo.toml":       "rust",
	"pyproject.toml":   "python",
	"requirements.txt": "python",
	"setup.py":         "python",
	"Gemfile":          "ruby",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"build.gradle.kts": "kotlin",
	"Package.swift":    "swift",
	"composer.json":    "php",
	"Dockerfile":       "docker",
}

// extensionStacks maps a source file extension to a stack tag.
var extensionStacks = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".rs":    "rust",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".swift": "swift",
	".php":   "php",
}

// keyFiles are summarized when present at the repository root.
var keyFiles = []string{
	"README.md", "README", "go.mod", "package.json", "Cargo.toml", "pyproject.toml",
	"requirements.txt", "Gemfile", "pom.xml", "build.gradle", "Dockerfile", "Makefile",
}

// skipDirs are never listed by the directory walk.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true, "build": true, "target": true,
}

// Local reads context from a checkout on disk. Inside a git repository the
// HEAD tree is listed; otherwise, or when HEAD has no commits yet, the
// directory is walked.
type Local struct {
	root            string
	maxTreeEntries  int
	maxSummaryChars int
}

// Option configures a Local provider.
type Option func(*Local)

// WithMaxTreeEntries bounds the lines of the file tree summary.
func WithMaxTreeEntries(n int) Option {
	return func(l *Local) { l.maxTreeEntries = n }
}

// WithMaxSummaryChars bounds each key file summary.
func WithMaxSummaryChars(n int) Option {
	return func(l *Local) { l.maxSummaryChars = n }
}

// NewLocal creates a provider for the checkout at root.
func NewLocal(root string, opts ...Option) *Local {
	l := &Local{root: root, maxTreeEntries: defaultMaxTreeEntries, maxSummaryChars: defaultMaxSummaryChars}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the checkout path.
func (l *Local) Root() string { return l.root }

// source lists files and reads their contents.
type source struct {
	paths []string
	read  func(p string) (string, error)
}

// Fetch builds the repository context. Errors are *errors.RepoContextError.
func (l *Local) Fetch(ctx context.Context) (*types.RepoContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewRepoContextError(l.root, err)
	}
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, errors.NewRepoContextError(l.root, err)
	}
	if !info.IsDir() {
		return nil, errors.NewRepoContextError(l.root, fmt.Errorf("%s is not a directory", l.root))
	}

	src, err := l.gitSource()
	if err != nil {
		src, err = l.walkSource(ctx)
		if err != nil {
			return nil, errors.NewRepoContextError(l.root, err)
		}
	}
	sort.Strings(src.paths)

	rc := &types.RepoContext{
		TechStack:        DetectTechStack(src.paths),
		FileTreeSummary:  SummarizeTree(src.paths, l.maxTreeEntries),
		KeyFileSummaries: make(map[string]string),
	}
	for _, name := range keyFiles {
		if !slices.Contains(src.paths, name) {
			continue
		}
		content, err := src.read(name)
		if err != nil {
			continue
		}
		rc.KeyFileSummaries[name] = summarize(content, l.maxSummaryChars)
	}
	return rc, nil
}

// gitSource lists the HEAD tree of the repository at root.
func (l *Local) gitSource() (*source, error) {
	repo, err := git.PlainOpen(l.root)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	var paths []string
	if err := tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	}); err != nil {
		return nil, err
	}

	return &source{
		paths: paths,
		read: func(p string) (string, error) {
			f, err := tree.File(p)
			if err != nil {
				return "", err
			}
			return f.Contents()
		},
	}, nil
}

// walkSource lists regular files below root, skipping hidden and build
// directories.
func (l *Local) walkSource(ctx context.Context) (*source, error) {
	var paths []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != l.root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &source{
		paths: paths,
		read: func(p string) (string, error) {
			b, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(p)))
			return string(b), err
		},
	}, nil
}

// DetectTechStack derives sorted stack tags from marker files at the root
// and from source file extensions anywhere in the tree.
func DetectTechStack(paths []string) []string {
	seen := make(map[string]bool)
	for _, p := range paths {
		if !strings.Contains(p, "/") {
			if tag, ok := stackMarkers[p]; ok {
				seen[tag] = true
			}
		}
		if tag, ok := extensionStacks[path.Ext(p)]; ok {
			seen[tag] = true
		}
	}
	stack := make([]string, 0, len(seen))
	for tag := range seen {
		stack = append(stack, tag)
	}
	sort.Strings(stack)
	return stack
}

// SummarizeTree renders top-level directories with their file counts,
// followed by top-level files. At most maxEntries lines are rendered.
func SummarizeTree(paths []string, maxEntries int) string {
	dirCounts := make(map[string]int)
	var dirs, files []string
	for _, p := range paths {
		top, _, nested := strings.Cut(p, "/")
		if !nested {
			files = append(files, p)
			continue
		}
		if dirCounts[top] == 0 {
			dirs = append(dirs, top)
		}
		dirCounts[top]++
	}
	sort.Strings(dirs)
	sort.Strings(files)

	var lines []string
	for _, d := range dirs {
		noun := "files"
		if dirCounts[d] == 1 {
			noun = "file"
		}
		lines = append(lines, fmt.Sprintf("%s/ (%d %s)", d, dirCounts[d], noun))
	}
	lines = append(lines, files...)

	if maxEntries > 0 && len(lines) > maxEntries {
		hidden := len(lines) - maxEntries
		lines = append(lines[:maxEntries], fmt.Sprintf("... and %d more entries", hidden))
	}
	return strings.Join(lines, "\n")
}

// summarize keeps the first lines of content within maxChars.
func summarize(content string, maxChars int) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > defaultMaxSummaryLines {
		lines = lines[:defaultMaxSummaryLines]
	}
	return util.TruncateString(strings.Join(lines, "\n"), maxChars)
}
