package webmonitor

import (
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// Source is the read path the server needs from a pipeline.
type Source interface {
	Stats() pipeline.Stats
	GetRecent(n int) []*types.FrameAnalysis
}

// StatusPayload is the body of /api/status and each status stream event.
type StatusPayload struct {
	Pipeline  pipeline.Stats `json:"pipeline"`
	Timestamp float64        `json:"timestamp"`
}

// AnalysisEvent is the payload for /api/analyses/stream.
type AnalysisEvent struct {
	FrameID       uint64            `json:"frame_id"`
	Timestamp     float64           `json:"timestamp"`
	NumDetections int               `json:"num_detections"`
	Detections    []types.Detection `json:"detections"`
	Alerts        []types.Alert     `json:"alerts"`
	AnomalyScore  float64           `json:"anomaly_score"`
	Consensus     float64           `json:"consensus_confidence"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// newAnalysisEvent flattens an analysis for streaming.
func newAnalysisEvent(a *types.FrameAnalysis) AnalysisEvent {
	ev := AnalysisEvent{
		FrameID:       a.FrameID,
		Timestamp:     float64(a.Timestamp.UnixNano()) / 1e9,
		NumDetections: len(a.Detections),
		Detections:    a.Detections,
		Alerts:        a.Alerts,
		Errors:        a.Results.Errors,
	}
	if a.Results.Anomaly != nil {
		ev.AnomalyScore = a.Results.Anomaly.Score
	}
	if a.Results.Consensus != nil {
		ev.Consensus = a.Results.Consensus.Confidence
	}
	return ev
}
