package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"meetsync/internal/logging"
)

const (
	ErrInvalidBody      = "invalid_request_body"
	ErrValidationFailed = "validation_failed"
)

// BindAndValidate binds the JSON body into out and runs v over it. On failure
// it writes a 400 with the case id and per-field messages and returns the error
// so the handler can stop.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	caseID := logging.CaseIDFromContext(c.Request.Context())
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   ErrInvalidBody,
			"case_id": caseID,
			"msg":     err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   ErrValidationFailed,
			"case_id": caseID,
			"fields":  FieldErrors(err),
		})
		return err
	}
	return nil
}

// FieldErrors flattens validator errors into namespace -> message.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Error()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
