// HTTP surface for the scanner motion host
//
// The web dashboard and the scan orchestrator drive the rig through this
// API instead of linking the controller package directly. All motion
// endpoints are thin translations onto the client facade; angle fields
// are converted through the coordinate mapping so callers think in
// degrees while the wire carries command units.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/controller"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/log"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/protocol"
)

// Controller is the facade surface the API serves. *controller.Client
// implements it; tests substitute a stub.
type Controller interface {
	MoveTo(ctx context.Context, target axes.Position, feedrate float64) error
	MoveRelative(ctx context.Context, delta axes.Position, feedrate float64) error
	Home(ctx context.Context, set axes.AxisSet) error
	Position(ctx context.Context, maxAge time.Duration) (axes.Position, bool, error)
	State() protocol.MachineState
	EmergencyStop() error
	FeedHold() error
	Resume() error
	Unlock(ctx context.Context) error
	Subscribe() (<-chan controller.StatusSample, func())
}

// Server serves the HTTP API.
type Server struct {
	ctrl    Controller
	mapping axes.Mapping
	logger  *log.Logger
	origins []string
	router  chi.Router
}

// New builds the API server. origins lists the allowed CORS origins;
// empty allows any, which suits a rig on a private network.
func New(ctrl Controller, mapping axes.Mapping, logger *log.Logger, origins []string) *Server {
	if logger == nil {
		logger = log.New("api")
	}
	s := &Server{
		ctrl:    ctrl,
		mapping: mapping,
		logger:  logger,
		origins: origins,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	allowed := s.origins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/position", s.handlePosition)
		r.Get("/status", s.handleStatus)
		r.Post("/move", s.handleMove)
		r.Post("/home", s.handleHome)
		r.Post("/estop", s.handleEStop)
		r.Post("/unlock", s.handleUnlock)
		r.Post("/hold", s.handleHold)
		r.Post("/resume", s.handleResume)
		r.Get("/stream", s.handleStream)
	})
	return r
}

// positionBody is the JSON shape for positions in responses. Z and C are
// echoed both as raw command units and as mapped degrees.
type positionBody struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	C           float64 `json:"c"`
	RotationDeg float64 `json:"rotation_deg"`
	TiltDeg     float64 `json:"tilt_deg"`
}

func (s *Server) positionBody(p axes.Position) positionBody {
	return positionBody{
		X:           p.X,
		Y:           p.Y,
		Z:           p.Z,
		C:           p.C,
		RotationDeg: s.mapping.DecodeRotation(p.Z),
		TiltDeg:     s.mapping.DecodeTilt(p.C),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.ctrl.State().String(),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	var maxAge time.Duration
	if v := r.URL.Query().Get("max_age_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			writeError(w, errors.ConfigValidationError("max_age_ms", "not a number"))
			return
		}
		maxAge = time.Duration(ms) * time.Millisecond
	}

	pos, fresh, err := s.ctrl.Position(r.Context(), maxAge)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		positionBody
		Fresh bool `json:"fresh"`
	}{s.positionBody(pos), fresh})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pos, fresh, err := s.ctrl.Position(r.Context(), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		State    string       `json:"state"`
		Position positionBody `json:"position"`
		Fresh    bool         `json:"fresh"`
	}{s.ctrl.State().String(), s.positionBody(pos), fresh})
}

// moveRequest drives both absolute and relative moves. Axis fields are
// pointers so an absent axis holds its current value (absolute) or moves
// by zero (relative). rotation_deg and tilt_deg are degree-domain
// alternatives to z and c.
type moveRequest struct {
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
	Z           *float64 `json:"z"`
	C           *float64 `json:"c"`
	RotationDeg *float64 `json:"rotation_deg"`
	TiltDeg     *float64 `json:"tilt_deg"`
	Relative    bool     `json:"relative"`
	Feedrate    float64  `json:"feedrate"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ConfigValidationError("body", err.Error()))
		return
	}
	if req.Z != nil && req.RotationDeg != nil {
		writeError(w, errors.ConfigValidationError("rotation_deg", "conflicts with z"))
		return
	}
	if req.C != nil && req.TiltDeg != nil {
		writeError(w, errors.ConfigValidationError("tilt_deg", "conflicts with c"))
		return
	}

	if req.Relative {
		var delta axes.Position
		setIf(&delta, axes.AxisX, req.X)
		setIf(&delta, axes.AxisY, req.Y)
		setIf(&delta, axes.AxisZ, req.Z)
		setIf(&delta, axes.AxisC, req.C)
		if req.RotationDeg != nil {
			delta.Z = *req.RotationDeg
		}
		if req.TiltDeg != nil {
			delta.C = *req.TiltDeg
		}
		if err := s.ctrl.MoveRelative(r.Context(), delta, req.Feedrate); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "complete"})
		return
	}

	// Absolute: unspecified axes hold their current position.
	target, _, err := s.ctrl.Position(r.Context(), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	setIf(&target, axes.AxisX, req.X)
	setIf(&target, axes.AxisY, req.Y)
	setIf(&target, axes.AxisZ, req.Z)
	setIf(&target, axes.AxisC, req.C)
	if req.RotationDeg != nil {
		target.Z = s.mapping.EncodeRotation(*req.RotationDeg)
	}
	if req.TiltDeg != nil {
		target.C = s.mapping.EncodeTilt(*req.TiltDeg)
	}

	if err := s.ctrl.MoveTo(r.Context(), target, req.Feedrate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "complete"})
}

type homeRequest struct {
	Axes []string `json:"axes"`
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	var req homeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.ConfigValidationError("body", err.Error()))
			return
		}
	}

	var list []axes.Axis
	for _, name := range req.Axes {
		a, err := axes.ParseAxis(name)
		if err != nil {
			writeError(w, errors.ConfigValidationError("axes", err.Error()))
			return
		}
		list = append(list, a)
	}

	if err := s.ctrl.Home(r.Context(), axes.NewAxisSet(list...)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "homed"})
}

func (s *Server) handleEStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.EmergencyStop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Unlock(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

func (s *Server) handleHold(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.FeedHold(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "holding"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Resume(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func setIf(p *axes.Position, a axes.Axis, v *float64) {
	if v != nil {
		*p = p.Set(a, *v)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrLimitViolation, errors.ErrConfigValidation, errors.ErrConfigLoad:
		status = http.StatusBadRequest
	case errors.ErrAlarm, errors.ErrEmergencyStop:
		status = http.StatusConflict
	case errors.ErrTimeout, errors.ErrHomingTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrConnection:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(errors.CodeOf(err)),
	})
}
