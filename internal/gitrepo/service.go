// Package gitrepo keeps an audit trail of annotator submissions. Each
// workspace gets a git repository; every submission is a commit that
// rewrites tasks/<task>/<annotator>.json.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"nercollab/internal/annotation"
)

// ErrNoHistory is returned when a workspace has no history repository yet.
var ErrNoHistory = errors.New("no submission history")

// ErrInvalidTrailer is returned when a task id or annotator name could not
// be written as a single commit trailer line.
var ErrInvalidTrailer = errors.New("invalid trailer value")

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	TaskID    string    `json:"task_id"`
	Annotator string    `json:"annotator"`
	SpanCount int       `json:"span_count"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) EnsureWorkspaceRepo(workspaceID string) error {
	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()
	return s.ensureRepo(workspaceID)
}

func (s *Service) ensureRepo(workspaceID string) error {
	repoPath := s.repoPath(workspaceID)
	if _, err := os.Stat(repoPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(repoPath, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	readme := fmt.Sprintf("Submission history for workspace %s\n", workspaceID)
	if err := os.WriteFile(filepath.Join(repoPath, "README"), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	if _, err := worktree.Add("README"); err != nil {
		return fmt.Errorf("git add readme: %w", err)
	}
	hash, err := worktree.Commit("Open submission history", &git.CommitOptions{
		Author: signature("nercollab"),
	})
	if err != nil {
		return fmt.Errorf("commit baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// RecordSubmission commits the annotator's full submission for a task. An
// identical re-submission still produces a commit.
func (s *Service) RecordSubmission(workspaceID, taskID, annotator string, spans []annotation.Span) (CommitInfo, error) {
	if !trailerSafe(taskID) || !trailerSafe(annotator) {
		return CommitInfo{}, fmt.Errorf("%w: task %q annotator %q", ErrInvalidTrailer, taskID, annotator)
	}
	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.ensureRepo(workspaceID); err != nil {
		return CommitInfo{}, err
	}
	repo, err := git.PlainOpen(s.repoPath(workspaceID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	if spans == nil {
		spans = []annotation.Span{}
	}
	payload, err := json.MarshalIndent(spans, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal submission: %w", err)
	}

	relPath := submissionPath(taskID, annotator)
	absPath := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create task dir: %w", err)
	}
	if err := os.WriteFile(absPath, append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write submission: %w", err)
	}
	if _, err := worktree.Add(relPath); err != nil {
		return CommitInfo{}, fmt.Errorf("git add submission: %w", err)
	}

	message := fmt.Sprintf("Submit %d spans for task %s\n\ntask: %s\nannotator: %s\nspans: %d\n",
		len(spans), taskID, taskID, annotator, len(spans))
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(annotator),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit submission: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists submission commits for a task, newest first. An empty
// annotator matches every annotator.
func (s *Service) History(workspaceID, taskID, annotator string, limit int) ([]CommitInfo, error) {
	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(workspaceID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		info := toCommitInfo(commitObj)
		if info.TaskID != taskID {
			return nil
		}
		if annotator != "" && info.Annotator != annotator {
			return nil
		}
		items = append(items, info)
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SubmissionAt reads the annotator's submission as of a commit.
func (s *Service) SubmissionAt(workspaceID, hash, taskID, annotator string) ([]annotation.Span, error) {
	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(workspaceID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(submissionPath(taskID, annotator))
	if err != nil {
		return nil, fmt.Errorf("load submission from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open submission reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read submission bytes: %w", err)
	}
	var spans []annotation.Span
	if err := json.Unmarshal(raw, &spans); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return spans, nil
}

// RemoveWorkspace deletes the workspace's history repository.
func (s *Service) RemoveWorkspace(workspaceID string) error {
	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(s.repoPath(workspaceID)); err != nil {
		return fmt.Errorf("remove history repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(workspaceID string) string {
	return filepath.Join(s.baseDir, url.PathEscape(workspaceID))
}

func (s *Service) workspaceLock(workspaceID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[workspaceID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[workspaceID] = lock
	return lock
}

func submissionPath(taskID, annotator string) string {
	return path.Join("tasks", url.PathEscape(taskID), url.PathEscape(annotator)+".json")
}

func signature(name string) *object.Signature {
	return &object.Signature{
		Name:  name,
		Email: fmt.Sprintf("%s@local.nercollab.dev", sanitizeEmail(name)),
		When:  time.Now(),
	}
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	info := CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.SplitN(commitObj.Message, "\n", 2)[0],
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
	for _, line := range strings.Split(commitObj.Message, "\n") {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "task":
			info.TaskID = value
		case "annotator":
			info.Annotator = value
		case "spans":
			info.SpanCount, _ = strconv.Atoi(value)
		}
	}
	return info
}

// trailerSafe reports whether value fits on one trailer line.
func trailerSafe(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	for _, r := range value {
		if unicode.IsControl(r) || r == '\u2028' || r == '\u2029' {
			return false
		}
	}
	return true
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "annotator"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
