package pipeline

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Faultbox/skelconv/internal/logger"
	"github.com/Faultbox/skelconv/pkg/anim"
	"github.com/Faultbox/skelconv/pkg/geometry"
)

// ExportReport summarizes one export.
type ExportReport struct {
	Points     int
	Wedges     int
	Faces      int
	Materials  int
	Bones      int
	Influences int

	PSABones    int
	Synthesized int
	Actions     int
	Keys        int

	Discarded       []geometry.DiscardedFaceWarning
	EmptyActions    []anim.EmptyAnimationWarning
	UnmatchedGroups []string
}

// Warnings returns the number of non-fatal problems.
func (r *ExportReport) Warnings() int {
	return len(r.Discarded) + len(r.EmptyActions) + len(r.UnmatchedGroups)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (r *ExportReport) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("points", r.Points)
	enc.AddInt("wedges", r.Wedges)
	enc.AddInt("faces", r.Faces)
	enc.AddInt("materials", r.Materials)
	enc.AddInt("bones", r.Bones)
	enc.AddInt("influences", r.Influences)
	enc.AddInt("psa_bones", r.PSABones)
	enc.AddInt("actions", r.Actions)
	enc.AddInt("keys", r.Keys)
	enc.AddInt("discarded_faces", len(r.Discarded))
	if r.Synthesized > 0 {
		enc.AddInt("synthesized_bones", r.Synthesized)
	}
	return nil
}

// Log writes each warning and then the summary line.
func (r *ExportReport) Log() {
	for _, w := range r.Discarded {
		logger.Warn(w.String())
	}
	for _, w := range r.EmptyActions {
		logger.Warn(w.String())
	}
	for _, name := range r.UnmatchedGroups {
		logger.Warn("vertex group matches no bone", zap.String("group", name))
	}
	logger.Info("export complete", zap.Object("summary", r), zap.Int("warnings", r.Warnings()))
}
