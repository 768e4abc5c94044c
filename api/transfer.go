package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/c360studio/maclib/catalog"
	"github.com/c360studio/maclib/library"
	"github.com/c360studio/maclib/storage"
)

// Multipart field names for uploads.
const (
	BackupFileField = "backup_file"
	ImportFileField = "import_file"
)

// BackupResponse is the body of POST /api/backup.
type BackupResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// DeleteAllResponse is the body of DELETE /api/backups.
type DeleteAllResponse struct {
	Deleted int `json:"deleted"`
}

// ExportRequest is the body of POST /api/export. Rationales are included
// unless include_rationales is explicitly false. When Filename is set the
// export is written to the exports directory instead of returned.
type ExportRequest struct {
	ClusterIDs        []string `json:"cluster_ids"`
	StandardIDs       []string `json:"standard_ids"`
	IncludeRationales *bool    `json:"include_rationales"`
	Filename          string   `json:"filename,omitempty"`
}

func (r ExportRequest) filter() library.ExportFilter {
	include := true
	if r.IncludeRationales != nil {
		include = *r.IncludeRationales
	}
	return library.ExportFilter{
		ClusterIDs:        r.ClusterIDs,
		StandardIDs:       r.StandardIDs,
		IncludeRationales: include,
	}
}

// ExportFileResponse is returned when an export is written to disk.
type ExportFileResponse struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// CleanupResponse is the body of POST /api/cleanup/emotions.
type CleanupResponse struct {
	Changed int                     `json:"changed"`
	Changes []catalog.EmotionChange `json:"changes"`
}

// openUpload opens a multipart file field, writing the error response and
// returning false when it is missing.
func (s *Server) openUpload(c *gin.Context, field string) (multipart.File, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, err)
			return nil, false
		}
		respondError(c, http.StatusBadRequest, CodeFileRequired,
			fmt.Errorf("no %s file part in the request", field))
		return nil, false
	}
	f, err := header.Open()
	if err != nil {
		s.fail(c, "open_upload", fmt.Errorf("open upload: %w", library.ErrIO))
		return nil, false
	}
	return f, true
}

// ----------------------------------------------------------------------------
// Backups
// ----------------------------------------------------------------------------

func (s *Server) handleCreateBackup(c *gin.Context) {
	name, err := s.catalog.CreateBackup(c.Request.Context())
	if err != nil {
		s.fail(c, "create_backup", err)
		return
	}
	c.JSON(http.StatusCreated, BackupResponse{
		Message:  "Backup created successfully",
		Filename: name,
	})
}

func (s *Server) handleListBackups(c *gin.Context) {
	backups, err := s.catalog.ListBackups()
	if err != nil {
		s.fail(c, "list_backups", err)
		return
	}
	if backups == nil {
		backups = []storage.BackupInfo{}
	}
	c.JSON(http.StatusOK, backups)
}

func (s *Server) handleDownloadBackup(c *gin.Context) {
	name := c.Param("filename")
	path, err := s.catalog.BackupPath(name)
	if err != nil {
		s.fail(c, "download_backup", err)
		return
	}
	c.FileAttachment(path, name)
}

func (s *Server) handleDeleteBackup(c *gin.Context) {
	if err := s.catalog.DeleteBackup(c.Request.Context(), c.Param("filename")); err != nil {
		s.fail(c, "delete_backup", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Backup deleted successfully"})
}

func (s *Server) handleDeleteAllBackups(c *gin.Context) {
	n, err := s.catalog.DeleteAllBackups(c.Request.Context())
	if err != nil {
		s.fail(c, "delete_all_backups", err)
		return
	}
	c.JSON(http.StatusOK, DeleteAllResponse{Deleted: n})
}

func (s *Server) handleRestoreBackup(c *gin.Context) {
	if err := s.catalog.RestoreFromBackup(c.Request.Context(), c.Param("filename")); err != nil {
		s.fail(c, "restore_backup", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Library restored successfully"})
}

func (s *Server) handleRestoreUpload(c *gin.Context) {
	f, ok := s.openUpload(c, BackupFileField)
	if !ok {
		return
	}
	defer f.Close()

	if err := s.catalog.RestoreFromUpload(c.Request.Context(), f); err != nil {
		s.fail(c, "restore_upload", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Library restored successfully"})
}

// ----------------------------------------------------------------------------
// Import / export
// ----------------------------------------------------------------------------

func (s *Server) handleExport(c *gin.Context) {
	var req ExportRequest
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &req) {
		return
	}

	if req.Filename != "" {
		path, err := s.catalog.ExportToFile(req.Filename, req.filter())
		if err != nil {
			s.fail(c, "export_file", err)
			return
		}
		c.JSON(http.StatusCreated, ExportFileResponse{Filename: req.Filename, Path: path})
		return
	}
	c.JSON(http.StatusOK, s.catalog.Export(req.filter()))
}

func (s *Server) handleImport(c *gin.Context) {
	f, ok := s.openUpload(c, ImportFileField)
	if !ok {
		return
	}
	defer f.Close()

	report, err := s.importer.Import(c.Request.Context(), f)
	if err != nil {
		s.fail(c, "import", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleCleanupEmotions(c *gin.Context) {
	changes, err := s.catalog.CleanupEmotions(c.Request.Context())
	if err != nil {
		s.fail(c, "cleanup_emotions", err)
		return
	}
	if changes == nil {
		changes = []catalog.EmotionChange{}
	}
	c.JSON(http.StatusOK, CleanupResponse{Changed: len(changes), Changes: changes})
}
