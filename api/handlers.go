package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/c360studio/maclib/catalog"
	"github.com/c360studio/maclib/library"
	"github.com/c360studio/maclib/library/validation"
)

// InfoResponse is the body of GET /api/info.
type InfoResponse struct {
	Version      string `json:"version"`
	LastModified string `json:"last_modified"`
	Clusters     int    `json:"clusters"`
	Standards    int    `json:"standards"`
}

// ValidationResponse is the body of GET /api/validation.
type ValidationResponse struct {
	Valid    bool                 `json:"valid"`
	Errors   int                  `json:"errors"`
	Warnings int                  `json:"warnings"`
	Findings []validation.Finding `json:"findings"`
}

// bindJSON decodes the request body into v, writing the error response and
// returning false on failure.
func (s *Server) bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, err)
			return false
		}
		respondError(c, http.StatusBadRequest, CodeInvalidJSON, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleInfo(c *gin.Context) {
	lib := s.catalog.Library()
	c.JSON(http.StatusOK, InfoResponse{
		Version:      lib.Version,
		LastModified: lib.LastModified,
		Clusters:     len(lib.Clusters),
		Standards:    len(lib.Standards),
	})
}

// ----------------------------------------------------------------------------
// Standards
// ----------------------------------------------------------------------------

// handleListStandards returns every standard, optionally narrowed to one
// cluster with ?cluster=<id>.
func (s *Server) handleListStandards(c *gin.Context) {
	standards := s.catalog.Standards()
	if cluster := c.Query("cluster"); cluster != "" {
		filtered := make([]library.Standard, 0, len(standards))
		for _, std := range standards {
			if std.Cluster == cluster {
				filtered = append(filtered, std)
			}
		}
		standards = filtered
	}
	c.JSON(http.StatusOK, standards)
}

func (s *Server) handleGetStandard(c *gin.Context) {
	std, err := s.catalog.Standard(c.Param("id"))
	if err != nil {
		s.fail(c, "get_standard", err)
		return
	}
	c.JSON(http.StatusOK, std)
}

func (s *Server) handleCreateStandard(c *gin.Context) {
	var in catalog.StandardInput
	if !s.bindJSON(c, &in) {
		return
	}
	std, err := s.catalog.CreateStandard(c.Request.Context(), in)
	if err != nil {
		s.fail(c, "create_standard", err)
		return
	}
	c.JSON(http.StatusCreated, std)
}

func (s *Server) handleUpdateStandard(c *gin.Context) {
	var in catalog.StandardInput
	if !s.bindJSON(c, &in) {
		return
	}
	std, err := s.catalog.UpdateStandard(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, "update_standard", err)
		return
	}
	c.JSON(http.StatusOK, std)
}

func (s *Server) handleDeleteStandard(c *gin.Context) {
	if err := s.catalog.DeleteStandard(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, "delete_standard", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Standard deleted successfully"})
}

// ----------------------------------------------------------------------------
// Clusters
// ----------------------------------------------------------------------------

func (s *Server) handleListClusters(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Clusters())
}

func (s *Server) handleGetCluster(c *gin.Context) {
	cl, err := s.catalog.Cluster(c.Param("id"))
	if err != nil {
		s.fail(c, "get_cluster", err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (s *Server) handleCreateCluster(c *gin.Context) {
	var in catalog.ClusterInput
	if !s.bindJSON(c, &in) {
		return
	}
	cl, err := s.catalog.CreateCluster(c.Request.Context(), in)
	if err != nil {
		s.fail(c, "create_cluster", err)
		return
	}
	c.JSON(http.StatusCreated, cl)
}

func (s *Server) handleUpdateCluster(c *gin.Context) {
	var in catalog.ClusterInput
	if !s.bindJSON(c, &in) {
		return
	}
	cl, err := s.catalog.UpdateCluster(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, "update_cluster", err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (s *Server) handleDeleteCluster(c *gin.Context) {
	if err := s.catalog.DeleteCluster(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, "delete_cluster", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Cluster deleted successfully"})
}

// ----------------------------------------------------------------------------
// Validation
// ----------------------------------------------------------------------------

func (s *Server) handleValidation(c *gin.Context) {
	report := s.catalog.Validate()
	findings := report.Findings
	if findings == nil {
		findings = []validation.Finding{}
	}
	errs := len(report.Errors())
	c.JSON(http.StatusOK, ValidationResponse{
		Valid:    errs == 0,
		Errors:   errs,
		Warnings: len(report.Warnings()),
		Findings: findings,
	})
}
