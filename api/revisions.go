package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/c360studio/maclib/storage"
)

// CodeRevisionsUnavailable is returned when the server has no KV mirror.
const CodeRevisionsUnavailable = "revisions_unavailable"

var errNoRevisions = errors.New("library revisions are not mirrored on this server")

// RevisionSource reads library documents kept by the KV mirror.
// *storage.KVMirror satisfies it.
type RevisionSource interface {
	History(ctx context.Context) ([]storage.Revision, error)
	Get(ctx context.Context, revision uint64) ([]byte, error)
}

// Option configures a Server.
type Option func(*Server)

// WithRevisions serves mirrored revisions from src.
func WithRevisions(src RevisionSource) Option {
	return func(s *Server) {
		if src != nil {
			s.revisions = src
		}
	}
}

// revisionParam parses :revision, writing the error response on failure.
func (s *Server) revisionParam(c *gin.Context) (uint64, bool) {
	if s.revisions == nil {
		respondError(c, http.StatusServiceUnavailable, CodeRevisionsUnavailable, errNoRevisions)
		return 0, false
	}
	rev, err := strconv.ParseUint(c.Param("revision"), 10, 64)
	if err != nil || rev == 0 {
		respondError(c, http.StatusBadRequest, CodeValidationFailed,
			fmt.Errorf("invalid revision %q", c.Param("revision")))
		return 0, false
	}
	return rev, true
}

// handleListRevisions returns the retained revisions, newest first.
func (s *Server) handleListRevisions(c *gin.Context) {
	if s.revisions == nil {
		respondError(c, http.StatusServiceUnavailable, CodeRevisionsUnavailable, errNoRevisions)
		return
	}
	revs, err := s.revisions.History(c.Request.Context())
	if err != nil {
		s.fail(c, "list_revisions", err)
		return
	}
	slices.Reverse(revs)
	c.JSON(http.StatusOK, revs)
}

func (s *Server) handleGetRevision(c *gin.Context) {
	rev, ok := s.revisionParam(c)
	if !ok {
		return
	}
	data, err := s.revisions.Get(c.Request.Context(), rev)
	if err != nil {
		s.fail(c, "get_revision", err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// handleRestoreRevision replaces the library with a mirrored revision. The
// document goes through the same checks as an uploaded restore.
func (s *Server) handleRestoreRevision(c *gin.Context) {
	rev, ok := s.revisionParam(c)
	if !ok {
		return
	}
	data, err := s.revisions.Get(c.Request.Context(), rev)
	if err != nil {
		s.fail(c, "restore_revision", err)
		return
	}
	if err := s.catalog.RestoreFromUpload(c.Request.Context(), bytes.NewReader(data)); err != nil {
		s.fail(c, "restore_revision", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("Library restored from revision %d", rev)})
}
