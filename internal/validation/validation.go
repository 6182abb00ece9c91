// Package validation provides input validation for ingested transactions.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mwilder/fraudscore/internal/ledger"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength caps free-text fields copied into the ledger.
const MaxStringLength = 255

// transNumRegex validates transaction numbers: the upstream generator
// emits hex strings, but any non-empty token without whitespace is
// accepted to keep replays of historical datasets working.
var transNumRegex = regexp.MustCompile(`^\S+$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
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
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(ve))
	for i, e := range ve {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// CheckRawTransaction validates an ingested transaction before it enters
// the log. Missing timestamp or dob is allowed here — such rows are
// ingestible but unprocessable, and the pipeline reports them as malformed
// when selected.
func CheckRawTransaction(tx *ledger.RawTransaction) ValidationErrors {
	var errs ValidationErrors

	if tx.TransNum == "" {
		errs = append(errs, ValidationError{Field: "trans_num", Message: "required"})
	} else if !transNumRegex.MatchString(tx.TransNum) {
		errs = append(errs, ValidationError{Field: "trans_num", Message: "must not contain whitespace"})
	}
	if tx.Merchant == "" {
		errs = append(errs, ValidationError{Field: "merchant", Message: "required"})
	}
	if tx.Category == "" {
		errs = append(errs, ValidationError{Field: "category", Message: "required"})
	}
	if tx.Amt < 0 {
		errs = append(errs, ValidationError{Field: "amt", Message: "must not be negative"})
	}
	if tx.CCNum <= 0 {
		errs = append(errs, ValidationError{Field: "cc_num", Message: "must be positive"})
	}
	for _, f := range []struct {
		name  string
		value string
	}{
		{"merchant", tx.Merchant},
		{"category", tx.Category},
		{"first", tx.First},
		{"last", tx.Last},
		{"street", tx.Street},
		{"city", tx.City},
		{"job", tx.Job},
	} {
		if len(f.value) > MaxStringLength {
			errs = append(errs, ValidationError{Field: f.name, Message: "too long"})
		}
	}

	return errs
}

// SanitizeString trims whitespace, limits length, and strips null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}
