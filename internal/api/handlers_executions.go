package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tcron/internal/repository"
)

// handleGetExecution returns one execution. ?tail=N keeps only the last N lines of
// both output streams.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	res, err := s.deps.Tasks.ExecutionResult(r.Context(), executionID)
	if err != nil {
		s.writeRepoError(w, err, "load execution")
		return
	}

	doc := repository.ToExecutionDocument(res)
	if tail := parseIntDefault(r.URL.Query().Get("tail"), 0); tail > 0 {
		doc.Output = tailLines(doc.Output, tail)
		doc.ErrorOutput = tailLines(doc.ErrorOutput, tail)
	}
	writeJSON(w, http.StatusOK, doc)
}

func tailLines(text string, n int) string {
	trimmed := strings.TrimSuffix(text, "\n")
	if trimmed == "" {
		return text
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= n {
		return text
	}
	out := strings.Join(lines[len(lines)-n:], "\n")
	if strings.HasSuffix(text, "\n") {
		out += "\n"
	}
	return out
}
