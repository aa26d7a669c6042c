package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyvault/internal/application/dto"
	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func sendError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if kvErr, ok := errors.AsKVError(err); ok {
		status = kvErr.HTTPStatus()
	}
	c.JSON(status, dto.ErrorResponse(err, traceID(c)))
}

// handleError logs at a level matching the failure and writes the structured error body.
func handleError(c *gin.Context, log logger.Logger, err error, operation string) {
	ctx := c.Request.Context()
	kvErr, ok := errors.AsKVError(err)
	if !ok || kvErr.HTTPStatus() >= http.StatusInternalServerError {
		log.Error(ctx, "Operation failed", err, logger.String("operation", operation))
	} else {
		log.Warn(ctx, "Operation rejected",
			logger.String("operation", operation),
			logger.String("error_code", string(kvErr.Code())),
			logger.String("error", kvErr.Error()),
		)
	}
	sendError(c, err)
}

// sendOutcome answers a mutation. A cancelled prompt is a normal 200 answer.
func sendOutcome(c *gin.Context, log logger.Logger, operation string, outcome lifecycle.Outcome, err error) {
	if err != nil {
		handleError(c, log, err, operation)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errors.ErrInvalidRequest("malformed request body").WithCause(err)
	}
	return utils.ValidateStruct(req)
}

func fingerprintParam(c *gin.Context) (models.Fingerprint, error) {
	fpr := models.NormalizeFingerprint(c.Param("fpr"))
	if !utils.ValidateFingerprint(string(fpr)) {
		return "", errors.ErrInvalidRequest("invalid fingerprint")
	}
	return fpr, nil
}
