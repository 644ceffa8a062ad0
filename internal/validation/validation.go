// Package validation provides input validation middleware for the CRIS API.
package validation

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxBatchIDs caps how many customer ids one batch request may name.
const MaxBatchIDs = 10000

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ParseCustomerID parses a customer id string. Ids are positive integers.
func ParseCustomerID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseIDList parses a comma-separated id list ("1,2,3"). An empty
// string yields a nil slice. Any malformed or non-positive entry fails
// the whole list.
func ParseIDList(s string) ([]int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	parts := strings.Split(s, ",")
	if len(parts) > MaxBatchIDs {
		return nil, false
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, ok := ParseCustomerID(p)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// ParseProbability parses an optional probability query parameter.
// Empty means "not set" and returns the fallback.
func ParseProbability(s string, fallback float64) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, true
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p < 0 || p > 1 {
		return 0, false
	}
	return p, true
}

// IDParamMiddleware validates the :id URL parameter on routes that use it.
// Apply to route groups that include :id params to reject malformed ids early.
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("id")
		if raw != "" {
			if _, ok := ParseCustomerID(raw); !ok {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_customer_id",
					"message": "customer id must be a positive integer",
				})
				return
			}
		}
		c.Next()
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}
