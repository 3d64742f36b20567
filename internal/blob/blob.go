// Package blob abstracts the object storage used for receipt and signature
// files. The service only depends on this interface; the hosted backend is
// out of scope and a filesystem-flavored stub serves local development.
package blob

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates the file id does not resolve.
var ErrNotFound = errors.New("blob: not found")

// Storage is the minimal object-store contract the claims flows need.
type Storage interface {
	// GenerateUploadURL returns a URL the client uploads one file to, plus
	// the file id the upload will be stored under.
	GenerateUploadURL(ctx context.Context) (url, fileID string, err error)
	// GetURL resolves a stored file id to a fetchable URL.
	GetURL(ctx context.Context, fileID string) (string, error)
	// Delete removes a stored file. Deleting an unknown id is not an error.
	Delete(ctx context.Context, fileID string) error
}

// Local is an in-process Storage for development and tests.
type Local struct {
	mu      sync.Mutex
	baseURL string
	seq     int
	known   map[string]struct{}
}

// NewLocal creates a Local storage rooted at baseURL.
func NewLocal(baseURL string) *Local {
	return &Local{baseURL: baseURL, known: make(map[string]struct{})}
}

func (l *Local) GenerateUploadURL(ctx context.Context) (string, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	id := fmt.Sprintf("file-%06d", l.seq)
	l.known[id] = struct{}{}
	return l.baseURL + "/upload/" + id, id, nil
}

func (l *Local) GetURL(ctx context.Context, fileID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.known[fileID]; !ok {
		return "", ErrNotFound
	}
	return l.baseURL + "/files/" + fileID, nil
}

func (l *Local) Delete(ctx context.Context, fileID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.known, fileID)
	return nil
}

var _ Storage = (*Local)(nil)
