package requestsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"govsync/internal/bootstrap/logging"
	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/ports"
)

type fileRequest struct {
	ID            string     `yaml:"id"`
	OperationType string     `yaml:"operation_type"`
	Status        string     `yaml:"status"`
	Title         string     `yaml:"title,omitempty"`
	Requester     string     `yaml:"requester,omitempty"`
	CreatedAt     time.Time  `yaml:"created_at"`
	ExpirationDt  *time.Time `yaml:"expiration_dt,omitempty"`
	Reason        string     `yaml:"reason,omitempty"`
}

type fileDocument struct {
	Scopes map[string][]fileRequest `yaml:"scopes"`
}

// FileSource serves requests from a YAML document. Approve and reject write the
// new status back so local runs behave like the real treasury.
type FileSource struct {
	path string

	mu  sync.RWMutex
	doc fileDocument
}

var _ ports.RequestSource = (*FileSource)(nil)

func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSource) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.doc = fileDocument{Scopes: map[string][]fileRequest{}}
			s.mu.Unlock()
			return nil
		}
		return errs.Wrapf(err, "read request file %q", s.path)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errs.Wrapf(err, "parse request file %q", s.path)
	}
	if doc.Scopes == nil {
		doc.Scopes = map[string][]fileRequest{}
	}
	for scope, items := range doc.Scopes {
		for _, item := range items {
			if _, err := governance.ParseRequestStatus(item.Status); err != nil {
				return errs.Wrapf(err, "scope %s request %s", scope, item.ID)
			}
		}
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

func (s *FileSource) GetRequest(ctx context.Context, scopeID string, requestID string) (governance.ExternalRequest, error) {
	if err := ctx.Err(); err != nil {
		return governance.ExternalRequest{}, errs.Wrap(err, "check context")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.doc.Scopes[scopeID] {
		if item.ID == requestID {
			return toRequest(scopeID, item), nil
		}
	}
	return governance.ExternalRequest{}, fmt.Errorf("%w: %s/%s", governance.ErrRequestNotFound, scopeID, requestID)
}

func (s *FileSource) ListOpenRequests(ctx context.Context, scopeID string) ([]governance.ExternalRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]governance.ExternalRequest, 0, len(s.doc.Scopes[scopeID]))
	for _, item := range s.doc.Scopes[scopeID] {
		req := toRequest(scopeID, item)
		if req.Status.Votable() {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *FileSource) ApproveRequest(ctx context.Context, scopeID string, requestID string, reason string) error {
	return s.decide(ctx, scopeID, requestID, governance.RequestApproved, reason)
}

func (s *FileSource) RejectRequest(ctx context.Context, scopeID string, requestID string, reason string) error {
	return s.decide(ctx, scopeID, requestID, governance.RequestRejected, reason)
}

func (s *FileSource) decide(ctx context.Context, scopeID string, requestID string, status governance.RequestStatus, reason string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.doc.Scopes[scopeID]
	for i := range items {
		if items[i].ID != requestID {
			continue
		}
		items[i].Status = string(status)
		items[i].Reason = reason
		return s.persistLocked()
	}
	return fmt.Errorf("%w: %s/%s", governance.ErrRequestNotFound, scopeID, requestID)
}

func (s *FileSource) persistLocked() error {
	raw, err := yaml.Marshal(s.doc)
	if err != nil {
		return errs.Wrap(err, "encode request file")
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrapf(err, "create request file directory %q", dir)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.Wrap(err, "write request file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errs.Wrap(err, "replace request file")
	}
	return nil
}

// Watch reloads the document whenever the file changes until ctx is done.
func (s *FileSource) Watch(ctx context.Context) error {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "infrastructure.requestsource.file"), slog.String("path", s.path))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create file watcher")
	}
	defer watcher.Close()

	// Watch the directory so atomic renames are observed.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return errs.Wrapf(err, "watch directory %q", dir)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.reload(); err != nil {
				logging.Warn(logCtx, "reload request file failed", slog.Any("err", errs.Loggable(err)))
				continue
			}
			logging.Debug(logCtx, "request file reloaded")
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(logCtx, "file watcher error", slog.Any("err", errs.Loggable(werr)))
		}
	}
}

func toRequest(scopeID string, item fileRequest) governance.ExternalRequest {
	status, _ := governance.ParseRequestStatus(item.Status)
	req := governance.ExternalRequest{
		ID:            item.ID,
		ScopeID:       scopeID,
		OperationType: item.OperationType,
		Category:      governance.ParseOperationCategory(item.OperationType),
		Status:        status,
		Title:         item.Title,
		Requester:     item.Requester,
		CreatedAt:     item.CreatedAt.UTC(),
	}
	if item.ExpirationDt != nil {
		req.ExpirationDt = item.ExpirationDt.UTC()
	}
	return req
}

// SetStatus overwrites a request's status, for operators simulating out-of-band changes.
func (s *FileSource) SetStatus(ctx context.Context, scopeID string, requestID string, status governance.RequestStatus) error {
	return s.decide(ctx, scopeID, requestID, status, "")
}
