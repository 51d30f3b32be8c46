package errors

import (
	"fmt"
	"net/http"
	"testing"

	"dgit/internal/branch"
	"dgit/internal/decision"
	"dgit/internal/mergerequest"
	"dgit/internal/repository"
	"dgit/internal/storage"
	"dgit/internal/tree"
	"dgit/internal/vcs"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		typ  ErrorType
	}{
		{"not found", fmt.Errorf("finding blob: %w", storage.ErrNotFound), http.StatusNotFound, ErrorTypeNotFound},
		{"empty branch", fmt.Errorf("branch %q: %w", "main", branch.ErrNoCommits), http.StatusNotFound, ErrorTypeNotFound},
		{"missing entry", tree.ErrNoSuchEntry, http.StatusNotFound, ErrorTypeNotFound},
		{"missing decision", fmt.Errorf("%w: rules/x.json", decision.ErrDecisionNotFound), http.StatusNotFound, ErrorTypeNotFound},
		{"conflict", fmt.Errorf("creating branch: %w", storage.ErrConflict), http.StatusConflict, ErrorTypeConflict},
		{"invalid", storage.Invalidf("title is required"), http.StatusBadRequest, ErrorTypeValidation},
		{"not mergeable", mergerequest.ErrNotMergeable, http.StatusBadRequest, ErrorTypeValidation},
		{"transition", mergerequest.ErrInvalidTransition, http.StatusBadRequest, ErrorTypeValidation},
		{"fast forward", vcs.ErrNotFastForward, http.StatusBadRequest, ErrorTypeValidation},
		{"owner", repository.ErrOwnerRequired, http.StatusBadRequest, ErrorTypeValidation},
		{"cycle", tree.ErrCycle, http.StatusBadRequest, ErrorTypeValidation},
		{"graph", decision.ErrInvalidGraph, http.StatusBadRequest, ErrorTypeValidation},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError, ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := From(tt.err)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.typ, apiErr.Type)
			assert.Equal(t, tt.err.Error(), apiErr.Message)
		})
	}
}

func TestFromMissingDecision(t *testing.T) {
	err := fmt.Errorf("node d: %w", &decision.MissingDecisionError{Key: "rules/x.json"})

	apiErr := From(err)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Equal(t, "Decision not found: rules/x.json", apiErr.Message)
}

func TestFromPassesThrough(t *testing.T) {
	assert.Nil(t, From(nil))

	orig := Unauthorized("X-User-ID header is required")
	assert.Same(t, orig, From(fmt.Errorf("wrapped: %w", orig)))
}
