package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ilja/jarvis/pkg/capability"
	"github.com/ilja/jarvis/pkg/confirm"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// defaultRequester identifies gateway callers that do not name
// themselves. Confirmation state is keyed by requester, so callers who
// want their own pending slot must send a requester field.
const defaultRequester = "gateway:local"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return id
}

// messageRequest is the POST /message body.
type messageRequest struct {
	Requester string `json:"requester"`
	Text      string `json:"text"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	requester := body.Requester
	if requester == "" {
		requester = defaultRequester
	}

	id := requestID()
	s.logger.Info().Str("request_id", id).Str("requester", requester).Msg("Gateway message")

	reply := s.assistant.HandleMessage(r.Context(), requester, body.Text)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id":         id,
		"reply":              reply.Text,
		"screenshot_path":    reply.ScreenshotPath,
		"needs_confirmation": reply.NeedsConfirmation,
	})
}

// actionRequest is the POST /action body: a direct, pre-structured
// action that skips interpretation but not validation or the gate.
type actionRequest struct {
	Requester  string                 `json:"requester"`
	Capability string                 `json:"capability"`
	Params     map[string]interface{} `json:"params"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var body actionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	requester := body.Requester
	if requester == "" {
		requester = defaultRequester
	}

	_, cap, err := s.registry.Resolve(body.Capability)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	params := body.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := cap.ValidateParams(params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := capability.ActionRequest{
		Capability: cap.ID,
		Params:     params,
		Requester:  requester,
		Utterance:  fmt.Sprintf("direct action %s", cap.ID),
		CreatedAt:  time.Now(),
	}

	dangerous := cap.Dangerous
	if s.policy != nil {
		dangerous = s.policy.Dangerous(cap.ID, cap.Dangerous)
	}
	if dangerous {
		s.gate.Hold(req)
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":     "pending_confirmation",
			"capability": cap.ID,
			"requester":  requester,
		})
		return
	}

	out := s.dispatcher.Dispatch(r.Context(), req)
	status := http.StatusOK
	response := map[string]interface{}{
		"outcome":        string(out.Record.Outcome),
		"message":        out.Result.Message,
		"data":           out.Result.Data,
		"audit_degraded": out.AuditDegraded,
	}
	if out.Err != nil {
		status = http.StatusBadGateway
		response["error"] = out.Err.Error()
	}
	writeJSON(w, status, response)
}

// confirmRequest is the POST /action/confirm body.
type confirmRequest struct {
	Requester string `json:"requester"`
	Decision  string `json:"decision"` // "yes" or "no"
}

func (s *Server) handleActionConfirm(w http.ResponseWriter, r *http.Request) {
	var body confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	requester := body.Requester
	if requester == "" {
		requester = defaultRequester
	}
	if !confirm.IsAffirmative(body.Decision) && !confirm.IsNegative(body.Decision) {
		writeError(w, http.StatusBadRequest, "decision must be yes or no")
		return
	}

	req, decision := s.gate.Resolve(requester, body.Decision)
	switch decision {
	case confirm.DecisionConfirmed:
		out := s.dispatcher.Dispatch(r.Context(), req)
		response := map[string]interface{}{
			"outcome": string(out.Record.Outcome),
			"message": out.Result.Message,
		}
		if out.Err != nil {
			response["error"] = out.Err.Error()
		}
		writeJSON(w, http.StatusOK, response)
	case confirm.DecisionDenied:
		s.dispatcher.RecordDenied(r.Context(), req)
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "denied"})
	case confirm.DecisionExpired:
		s.dispatcher.RecordExpired(r.Context(), req)
		writeJSON(w, http.StatusGone, map[string]string{"outcome": "expired"})
	default:
		writeError(w, http.StatusNotFound, "nothing pending for this requester")
	}
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	var modules []map[string]interface{}
	for _, m := range s.registry.Modules() {
		modules = append(modules, map[string]interface{}{
			"name":         m.Name(),
			"description":  m.Description(),
			"enabled":      s.registry.Enabled(m.Name()),
			"capabilities": len(m.Capabilities()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"modules": modules})
}

func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	m, err := s.registry.Module(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	caps := make([]map[string]interface{}, 0, len(m.Capabilities()))
	for _, c := range m.Capabilities() {
		caps = append(caps, map[string]interface{}{
			"id":          c.ID,
			"description": c.Description,
			"dangerous":   c.Dangerous,
			"parameters":  c.Parameters,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":         m.Name(),
		"description":  m.Description(),
		"enabled":      s.registry.Enabled(name),
		"state":        m.State(r.Context()),
		"capabilities": caps,
	})
}

func (s *Server) handleModuleEnable(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := s.registry.SetEnabled(name, enabled); err != nil {
			if errors.Is(err, capability.ErrUnknownModule) {
				writeError(w, http.StatusNotFound, err.Error())
			} else {
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		s.logger.Info().Str("module", name).Bool("enabled", enabled).Msg("Module toggled")
		writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "enabled": enabled})
	}
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := s.registry.List()
	out := make([]map[string]interface{}, 0, len(caps))
	for _, c := range caps {
		dangerous := c.Dangerous
		if s.policy != nil {
			dangerous = s.policy.Dangerous(c.ID, c.Dangerous)
		}
		out = append(out, map[string]interface{}{
			"id":          c.ID,
			"description": c.Description,
			"dangerous":   dangerous,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": out})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.audit.AddNote(r.Context(), body.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	notes, err := s.audit.Notes(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"modules":     len(s.registry.Modules()),
		"subscribers": s.broadcaster.Count(),
	})
}
