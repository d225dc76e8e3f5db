package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/schema-guard/internal/associations"
	"github.com/ksred/schema-guard/internal/utils"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Migration string `json:"migration,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// RollbackRequest is the optional body of POST /rollback
type RollbackRequest struct {
	Steps int `json:"steps"`
}

// AssociationsResponse reports the attached graph and its violations
type AssociationsResponse struct {
	Consistent bool                    `json:"consistent"`
	Models     []*associations.Model   `json:"models"`
	Violations associations.Violations `json:"violations"`
}

func (s *Server) statusHandler(c *gin.Context) {
	status, err := s.runner.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// migrateHandler runs under the lock's signal handling: SIGINT or SIGTERM while
// a migration is in flight releases the lock and exits without graceful shutdown
func (s *Server) migrateHandler(c *gin.Context) {
	s.logger.Info().Str("operator", getOperator(c)).Msg("Migrate requested")

	result, err := s.runner.Migrate(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) rollbackHandler(c *gin.Context) {
	req := RollbackRequest{Steps: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
			return
		}
	}

	s.logger.Info().
		Str("operator", getOperator(c)).
		Int("steps", req.Steps).
		Msg("Rollback requested")

	result, err := s.runner.Rollback(c.Request.Context(), req.Steps)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) unlockHandler(c *gin.Context) {
	s.logger.Warn().Str("operator", getOperator(c)).Msg("Force unlock requested")

	if err := s.runner.LockManager().ForceUnlock(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": false})
}

func (s *Server) associationsHandler(c *gin.Context) {
	violations := s.runner.CheckAssociations()
	if violations == nil {
		violations = associations.Violations{}
	}

	response := AssociationsResponse{
		Consistent: len(violations) == 0,
		Models:     []*associations.Model{},
		Violations: violations,
	}
	if graph := s.runner.Graph(); graph != nil {
		response.Models = graph.Models()
	}

	if !response.Consistent {
		c.JSON(http.StatusUnprocessableEntity, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// writeError maps the error taxonomy onto status codes
func (s *Server) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	response := ErrorResponse{Error: err.Error()}

	var execErr *utils.MigrationExecutionError
	if errors.As(err, &execErr) {
		response.Migration = execErr.Name
		response.Direction = execErr.Direction
	}

	switch {
	case utils.IsAlreadyLocked(err):
		c.JSON(http.StatusConflict, response)
	case utils.IsConsistencyError(err):
		c.JSON(http.StatusUnprocessableEntity, response)
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, response)
	case utils.IsSetupError(err):
		c.JSON(http.StatusServiceUnavailable, response)
	default:
		c.JSON(http.StatusInternalServerError, response)
	}
}
