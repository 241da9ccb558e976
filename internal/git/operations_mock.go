package git

import (
	"context"
	"sync"
)

// MockOperations is a test double recording calls and returning configured
// results.
type MockOperations struct {
	mu sync.Mutex

	CloneErr  error
	PullErr   error
	HeadSHAs  map[string]string // dir -> sha
	BranchFor map[string]string // dir -> branch

	CloneCalls []CloneCall
	PullCalls  []PullCall
}

// CloneCall records one Clone invocation.
type CloneCall struct {
	URL    string
	Branch string
	Dest   string
}

// PullCall records one Pull invocation.
type PullCall struct {
	Dir    string
	Branch string
}

// NewMockOperations creates an empty mock.
func NewMockOperations() *MockOperations {
	return &MockOperations{
		HeadSHAs:  map[string]string{},
		BranchFor: map[string]string{},
	}
}

func (m *MockOperations) Clone(ctx context.Context, url, branch, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloneCalls = append(m.CloneCalls, CloneCall{URL: url, Branch: branch, Dest: dest})
	return m.CloneErr
}

func (m *MockOperations) Pull(ctx context.Context, dir, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PullCalls = append(m.PullCalls, PullCall{Dir: dir, Branch: branch})
	return m.PullErr
}

func (m *MockOperations) HeadSHA(ctx context.Context, dir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sha, ok := m.HeadSHAs[dir]; ok {
		return sha, nil
	}
	return "0000000000000000000000000000000000000000", nil
}

func (m *MockOperations) CurrentBranch(ctx context.Context, dir string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.BranchFor[dir]; ok {
		return b
	}
	return "main"
}
