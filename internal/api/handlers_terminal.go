package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tcron/internal/repository"
)

type createSessionRequest struct {
	Name             string `json:"name"`
	WorkingDirectory string `json:"working_directory"`
}

type executeCommandRequest struct {
	Command string `json:"command"`
	Root    bool   `json:"root"`
}

type changeDirectoryRequest struct {
	Directory string `json:"directory"`
}

type setEnvironmentRequest struct {
	Value string `json:"value"`
}

type saveScriptRequest struct {
	FileName string `json:"file_name"`
}

type saveScriptResponse struct {
	Path string `json:"path"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Terminal.ListSessions(r.Context(), parseBoolParam(r.URL.Query().Get("active")))
	if err != nil {
		s.writeRepoError(w, err, "list sessions")
		return
	}
	resp := make([]repository.SessionDocument, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, repository.ToSessionDocument(sess))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.deps.Terminal.CreateSession(r.Context(), req.Name, req.WorkingDirectory)
	if err != nil {
		s.writeRepoError(w, err, "create session")
		return
	}
	writeJSON(w, http.StatusCreated, repository.ToSessionDocument(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Terminal.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeRepoError(w, err, "load session")
		return
	}
	writeJSON(w, http.StatusOK, repository.ToSessionDocument(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Terminal.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeRepoError(w, err, "delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Terminal.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeRepoError(w, err, "close session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req executeCommandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	run := s.deps.Terminal.ExecuteCommand
	if req.Root {
		run = s.deps.Terminal.ExecuteCommandWithRoot
	}
	cmd, err := run(r.Context(), sessionID, req.Command)
	if err != nil {
		s.writeRepoError(w, err, "execute command")
		return
	}
	writeJSON(w, http.StatusOK, repository.ToCommandDocument(cmd))
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.Terminal.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeRepoError(w, err, "load history")
		return
	}
	resp := make([]repository.CommandDocument, 0, len(history))
	for _, c := range history {
		resp = append(resp, repository.ToCommandDocument(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearSessionHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Terminal.ClearHistory(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeRepoError(w, err, "clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearSessionOutput(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Terminal.ClearOutput(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeRepoError(w, err, "clear output")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangeDirectory(w http.ResponseWriter, r *http.Request) {
	var req changeDirectoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.deps.Terminal.ChangeWorkingDirectory(r.Context(), sessionID, req.Directory); err != nil {
		s.writeRepoError(w, err, "change directory")
		return
	}
	sess, err := s.deps.Terminal.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeRepoError(w, err, "load session")
		return
	}
	writeJSON(w, http.StatusOK, repository.ToSessionDocument(sess))
}

func (s *Server) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	env, err := s.deps.Terminal.Environment(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeRepoError(w, err, "load environment")
		return
	}
	if env == nil {
		env = map[string]string{}
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleSetEnvironment(w http.ResponseWriter, r *http.Request) {
	var req setEnvironmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.deps.Terminal.SetEnvironmentVariable(r.Context(), sessionID, chi.URLParam(r, "key"), req.Value); err != nil {
		s.writeRepoError(w, err, "set environment variable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKillProcess(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Terminal.KillProcess(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeRepoError(w, err, "kill process")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveScript(w http.ResponseWriter, r *http.Request) {
	var req saveScriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, err := s.deps.Terminal.SaveAsScript(r.Context(), chi.URLParam(r, "sessionID"), req.FileName)
	if err != nil {
		s.writeRepoError(w, err, "save script")
		return
	}
	writeJSON(w, http.StatusCreated, saveScriptResponse{Path: path})
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	format, err := repository.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeRepoError(w, err, "export session")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	data, err := s.deps.Terminal.Export(r.Context(), sessionID, format)
	if err != nil {
		s.writeRepoError(w, err, "export session")
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.%s"`, sessionID, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
