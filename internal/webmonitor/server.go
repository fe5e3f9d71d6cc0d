package webmonitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// Server serves the read-only status endpoints of a pipeline.
type Server struct {
	cfg      Config
	source   Source
	now      func() time.Time
	status   *Broadcaster
	analyses *Broadcaster
	log      *logger.Module

	mu       sync.Mutex
	lastSent uint64 // last frame id broadcast on the analysis stream
}

// NewServer returns a configured status server. Call Start to begin
// broadcasting and Close to release it.
func NewServer(cfg Config, src Source) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:    cfg,
		source: src,
		now:    time.Now,
		log:    logger.For("WebMonitor"),
	}
	s.status = newBroadcaster("StatusBroadcaster", cfg.StatusInterval, 2, func() []any {
		return []any{s.statusPayload()}
	})
	s.analyses = newBroadcaster("AnalysisBroadcaster", cfg.AnalysisInterval, cfg.MaxRecent, s.nextAnalysisEvents)
	return s
}

// Start launches the broadcasters.
func (s *Server) Start() {
	s.status.Start()
	s.analyses.Start()
}

// Close stops the broadcasters and disconnects stream clients.
func (s *Server) Close() {
	s.status.Stop()
	s.analyses.Stop()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.cors(s.handleStatus))
	mux.HandleFunc("/api/status/stream", s.cors(s.handleStatusStream))
	mux.HandleFunc("/api/analyses", s.cors(s.handleAnalyses))
	mux.HandleFunc("/api/analyses/stream", s.cors(s.handleAnalysesStream))

	return mux
}

// cors wraps read-only handlers with CORS headers
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AllowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		}

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodGet, http.MethodHead:
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.source.Stats()
	writeJSON(w, map[string]any{
		"status":       "ok",
		"running":      st.Running,
		"run_id":       st.RunID,
		"total_frames": st.TotalFrames,
	})
}

func (s *Server) statusPayload() StatusPayload {
	return StatusPayload{
		Pipeline:  s.source.Stats(),
		Timestamp: float64(s.now().UnixNano()) / 1e9,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)

	initial := serializeEvent(s.log, s.statusPayload())
	streamEventsFromChannel(w, r, eventCh, initial, wantsProtobuf(r), s.cfg.KeepaliveInterval)
}

// nextAnalysisEvents returns one event per analysis produced since the last
// tick, oldest first. At most MaxRecent are caught up per tick.
func (s *Server) nextAnalysisEvents() []any {
	recent := s.source.GetRecent(s.cfg.MaxRecent)
	if len(recent) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Frame ids restart with a fresh coordinator.
	if recent[0].FrameID < s.lastSent {
		s.lastSent = 0
	}

	var events []any
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].FrameID > s.lastSent {
			events = append(events, newAnalysisEvent(recent[i]))
		}
	}
	s.lastSent = recent[0].FrameID
	return events
}

func (s *Server) handleAnalysesStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.analyses.Subscribe()
	defer s.analyses.Unsubscribe(id)

	streamEventsFromChannel(w, r, eventCh, nil, wantsProtobuf(r), s.cfg.KeepaliveInterval)
}

// handleAnalyses returns up to n recent analyses, most recent first. Without
// n the pipeline default applies; n=0 returns none. Clients sending
// Accept: application/x-protobuf get a binary structpb.ListValue.
func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	var analyses []*types.FrameAnalysis
	raw := r.URL.Query().Get("n")
	switch raw {
	case "":
		analyses = s.source.GetRecent(0)
	default:
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSONWithStatus(w, map[string]any{"error": "n must be a non-negative integer"}, http.StatusBadRequest)
			return
		}
		if v > 0 {
			analyses = s.source.GetRecent(min(v, s.cfg.MaxRecent))
		}
	}
	if analyses == nil {
		analyses = []*types.FrameAnalysis{}
	}

	if wantsProtobuf(r) {
		s.writeProtobuf(w, analyses)
		return
	}
	writeJSON(w, analyses)
}

func (s *Server) writeProtobuf(w http.ResponseWriter, analyses []*types.FrameAnalysis) {
	data, err := json.Marshal(analyses)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	var generic []any
	if err := json.Unmarshal(data, &generic); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	list, err := structpb.NewList(generic)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	pbData, err := proto.Marshal(list)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pbData)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
