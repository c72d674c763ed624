package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fantastic-router/fantastic-router/planning"
)

type planRequestDTO struct {
	Query           string            `json:"query"`
	UserID          string            `json:"user_id"`
	UserRole        string            `json:"user_role"`
	Context         map[string]string `json:"context"`
	MaxAlternatives *int              `json:"max_alternatives"`
}

type planResponseDTO struct {
	Success      bool                   `json:"success"`
	ActionPlan   *planning.ActionPlan   `json:"action_plan,omitempty"`
	Alternatives []*planning.ActionPlan `json:"alternatives"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Performance  planning.Performance   `json:"performance"`
	CacheHit     bool                   `json:"cache_hit"`
	CacheType    string                 `json:"cache_type,omitempty"`
	RequestID    string                 `json:"request_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handlePlan runs one planning request. Malformed or out-of-range requests
// get a 400; handled planning failures come back as 200 with success false.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var dto planRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if strings.TrimSpace(dto.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query must not be empty"})
		return
	}
	if len(dto.Query) > planning.MaxQueryLength {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("query exceeds %d characters", planning.MaxQueryLength),
		})
		return
	}

	maxAlternatives := planning.DefaultMaxAlternatives
	if dto.MaxAlternatives != nil {
		maxAlternatives = *dto.MaxAlternatives
	}
	if maxAlternatives < 0 || maxAlternatives > planning.MaxAlternativesCeiling {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("max_alternatives must be between 0 and %d", planning.MaxAlternativesCeiling),
		})
		return
	}

	result, err := s.planner.Plan(r.Context(), &planning.PlanRequest{
		Query:           dto.Query,
		UserID:          dto.UserID,
		UserRole:        dto.UserRole,
		Context:         dto.Context,
		MaxAlternatives: maxAlternatives,
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "request cancelled"})
		return
	}

	resp := planResponseDTO{
		Success:      result.Success,
		ErrorKind:    string(result.ErrorKind),
		Message:      result.Message,
		Performance:  result.Performance,
		CacheHit:     result.CacheHit,
		CacheType:    result.CacheType,
		RequestID:    result.RequestID,
		Alternatives: []*planning.ActionPlan{},
	}
	if result.Plan != nil {
		resp.Alternatives = result.Plan.Alternatives
		resp.ActionPlan = result.Plan.WithoutAlternatives()
		if resp.Alternatives == nil {
			resp.Alternatives = []*planning.ActionPlan{}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateRequestDTO struct {
	Route      string            `json:"route"`
	Parameters map[string]string `json:"parameters"`
}

type validateResponseDTO struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// handleValidate checks one route string against basic syntax rules and the
// configured patterns.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var dto validateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	route := strings.TrimSpace(dto.Route)
	resp := validateResponseDTO{Issues: []string{}, Suggestions: []string{}}

	switch {
	case route == "":
		resp.Issues = append(resp.Issues, "route cannot be empty")
	case !strings.HasPrefix(route, "/"):
		resp.Issues = append(resp.Issues, "route must start with /")
		resp.Suggestions = append(resp.Suggestions, "add a leading slash")
	}
	if strings.Count(route, "{") != strings.Count(route, "}") {
		resp.Issues = append(resp.Issues, "unbalanced parameter braces")
	}

	if cfg := s.store.Snapshot(); cfg != nil && route != "" {
		known := false
		var similar []string
		for _, p := range cfg.RoutePatterns {
			if p.Pattern == route {
				known = true
				break
			}
			if len(similar) < 3 {
				similar = append(similar, p.Pattern)
			}
		}
		if !known {
			resp.Suggestions = append(resp.Suggestions, "route not found in configured patterns")
			for _, p := range similar {
				resp.Suggestions = append(resp.Suggestions, "similar: "+p)
			}
		}
	}

	resp.Valid = len(resp.Issues) == 0
	writeJSON(w, http.StatusOK, resp)
}

type cacheStatsResponse struct {
	Request    planning.CacheStats `json:"request"`
	Structural planning.CacheStats `json:"structural"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	request, structural := s.planner.CacheStats(r.Context())
	writeJSON(w, http.StatusOK, cacheStatsResponse{Request: request, Structural: structural})
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// handleHealth rolls component checks into healthy or degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	status := "healthy"

	if s.pinger != nil {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := s.pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			components["database"] = "unhealthy"
			status = "degraded"
		} else {
			components["database"] = "healthy"
		}
	} else {
		components["database"] = "unconfigured"
	}

	components["llm"] = "available"

	if s.store.Snapshot() != nil {
		components["configuration"] = "loaded"
	} else {
		components["configuration"] = "missing"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:     status,
		Version:    s.version,
		Components: components,
		Timestamp:  time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
