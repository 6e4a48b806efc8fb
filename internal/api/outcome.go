package api

import (
	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/gin-gonic/gin"
)

// writeError renders err as an OperationOutcome with the status its
// apperr.Kind maps to (spec §7). A non-*apperr.Error is treated as
// KindInternal and logged, since it means some lower layer returned a
// bare error instead of going through the taxonomy.
func writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	kind := apperr.KindInternal
	msg := err.Error()
	if ok {
		kind = appErr.Kind
		msg = appErr.Msg
	} else {
		logger.WithFields(logger.Fields{"error": err}).Error("handler returned a non-taxonomy error")
	}
	outcome := fhirmodel.NewOperationOutcome(fhirmodel.IssueSeverityError, kind.IssueCode(), msg)
	c.Header("Content-Type", fhirJSON)
	c.JSON(kind.HTTPStatus(), outcome)
}

// writeResource renders a raw stored resource body with the given status,
// setting the FHIR content type rather than gin's default JSON type.
func writeResource(c *gin.Context, status int, body []byte) {
	c.Data(status, fhirJSON, body)
}

// writeBundle renders b as the HTTP response body.
func writeBundle(c *gin.Context, status int, b *fhirmodel.Bundle) {
	c.Header("Content-Type", fhirJSON)
	c.JSON(status, b)
}
