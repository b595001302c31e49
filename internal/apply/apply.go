// Package apply writes generated files into a git checkout and commits them
// on a dedicated branch.
package apply

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/logging"
	"github.com/Iron-Ham/horizon/internal/util"
)

// Result is the outcome of one Apply call.
type Result struct {
	Success   bool     `json:"success"`
	Branch    string   `json:"branch,omitempty"`
	Commit    string   `json:"commit,omitempty"`
	CommitURL string   `json:"commit_url,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Applier applies files with a commit message.
type Applier interface {
	Apply(ctx context.Context, files []types.FileChange, message string) Result
}

// Git applies files to a local repository with go-git. No remote is
// contacted; the commit URL is derived from the origin remote's address.
type Git struct {
	root         string
	branchPrefix string
	authorName   string
	authorEmail  string
	clock        func() time.Time
	logger       *logging.Logger
}

// Option configures a Git applier.
type Option func(*Git)

// WithBranchPrefix sets the prefix of created branches.
func WithBranchPrefix(prefix string) Option {
	return func(g *Git) { g.branchPrefix = strings.Trim(prefix, "/") }
}

// WithAuthor sets the commit author.
func WithAuthor(name, email string) Option {
	return func(g *Git) {
		g.authorName = name
		g.authorEmail = email
	}
}

// WithClock sets the commit timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(g *Git) { g.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Git) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGit creates an applier for the repository at root.
func NewGit(root string, opts ...Option) *Git {
	g := &Git{
		root:         root,
		branchPrefix: "horizon",
		authorName:   "horizon",
		authorEmail:  "horizon@localhost",
		clock:        time.Now,
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BranchName returns the branch a commit message maps to.
func (g *Git) BranchName(message string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	slug := util.Slugify(title, 48)
	if g.branchPrefix == "" {
		return slug
	}
	return g.branchPrefix + "/" + slug
}

// Apply checks out (or creates) the branch for message, writes or deletes
// every file, and commits. Files that cannot be applied are reported in
// Result.Errors while the rest are still committed.
func (g *Git) Apply(ctx context.Context, files []types.FileChange, message string) Result {
	branch := g.BranchName(message)
	res := Result{Branch: branch}
	fail := func(err error) Result {
		res.Errors = append(res.Errors, err.Error())
		g.logger.Error("apply failed", "branch", branch, "error", err.Error())
		return res
	}

	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return fail(fmt.Errorf("open repository: %w", err))
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fail(fmt.Errorf("open worktree: %w", err))
	}
	if err := checkoutBranch(repo, wt, plumbing.NewBranchReferenceName(branch)); err != nil {
		return fail(fmt.Errorf("checkout %s: %w", branch, err))
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := g.applyFile(wt, f); err != nil {
			res.Errors = append(res.Errors, err.Error())
			g.logger.Warn("file not applied", "path", f.Path, "error", err.Error())
		}
	}

	status, err := wt.Status()
	if err != nil {
		return fail(fmt.Errorf("status: %w", err))
	}
	if !hasStaged(status) {
		if head, err := repo.Head(); err == nil {
			res.Commit = head.Hash().String()
		}
		res.Success = len(res.Errors) == 0
		g.logger.Info("nothing to commit", "branch", branch)
		return res
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: g.authorName, Email: g.authorEmail, When: g.clock()},
	})
	if err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}

	res.Commit = hash.String()
	res.CommitURL = commitURL(repo, res.Commit)
	res.Success = len(res.Errors) == 0
	g.logger.Info("files committed",
		"branch", branch,
		"commit", res.Commit,
		"files", len(files),
	)
	return res
}

// checkoutBranch switches to ref, creating it from HEAD when missing. In a
// repository without commits HEAD is pointed at ref directly.
func checkoutBranch(repo *git.Repository, wt *git.Worktree, ref plumbing.ReferenceName) error {
	if _, err := repo.Reference(ref, true); err == nil {
		return wt.Checkout(&git.CheckoutOptions{Branch: ref, Keep: true})
	}
	if _, err := repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		return repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref))
	}
	return wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true, Keep: true})
}

func (g *Git) applyFile(wt *git.Worktree, f types.FileChange) error {
	if err := validPath(f.Path); err != nil {
		return err
	}
	full := filepath.Join(g.root, filepath.FromSlash(f.Path))

	if f.Action == types.ActionDelete {
		if _, err := os.Stat(full); os.IsNotExist(err) {
			return fmt.Errorf("delete %s: file does not exist", f.Path)
		}
		if _, err := wt.Remove(f.Path); err != nil {
			return fmt.Errorf("delete %s: %w", f.Path, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	// Restore the trailing newline the output parser strips.
	content := f.Content
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if _, err := wt.Add(f.Path); err != nil {
		return fmt.Errorf("stage %s: %w", f.Path, err)
	}
	return nil
}

func hasStaged(status git.Status) bool {
	for _, fs := range status {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			return true
		}
	}
	return false
}

func validPath(p string) error {
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return errors.NewParseError(p, "path must be relative")
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return errors.NewParseError(p, "parent directory traversal is not allowed")
		}
		if seg == ".git" {
			return errors.NewParseError(p, "writing into .git is not allowed")
		}
	}
	return nil
}

var scpLike = regexp.MustCompile(`^[\w.-]+@([\w.-]+):(.+)$`)

// commitURL builds a web link for commit from the origin remote, or "".
func commitURL(repo *git.Repository, commit string) string {
	remote, err := repo.Remote("origin")
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}
	base := WebURL(remote.Config().URLs[0])
	if base == "" {
		return ""
	}
	return base + "/commit/" + commit
}

// WebURL converts an HTTPS, SSH or scp-style remote address into the
// repository's https web address. Local paths yield "".
func WebURL(remote string) string {
	remote = strings.TrimSpace(remote)
	var host, repoPath string

	if m := scpLike.FindStringSubmatch(remote); m != nil && !strings.Contains(remote, "://") {
		host, repoPath = m[1], m[2]
	} else {
		u, err := url.Parse(remote)
		if err != nil {
			return ""
		}
		switch u.Scheme {
		case "https", "http", "ssh", "git":
		default:
			return ""
		}
		host, repoPath = u.Hostname(), u.Path
	}

	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	if host == "" || strings.Count(repoPath, "/") < 1 {
		return ""
	}
	return "https://" + host + "/" + repoPath
}
