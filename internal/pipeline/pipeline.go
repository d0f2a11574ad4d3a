// Package pipeline runs whole conversions: a scene to PSK/PSA files, and a
// PSK file back to an importable model. It owns logging and the export
// report; the packages under pkg/ only return values and errors.
package pipeline

import (
	"fmt"

	"github.com/Faultbox/skelconv/pkg/chunk"
)

// Stage names the pass an error came from.
type Stage string

// Conversion stages.
const (
	StageRead      Stage = "read"
	StageMesh      Stage = "mesh"
	StageArmature  Stage = "armature"
	StageAnimation Stage = "animation"
	StageWrite     Stage = "write"
)

// StageError is a fatal error tagged with the pass that raised it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// ExportOptions controls an export.
type ExportOptions struct {
	// FrameRate overrides the scene's frame rate when positive.
	FrameRate float32
	FlipV     bool
	Names     *chunk.NameCodec
	// WritePSA enables the animation file.
	WritePSA bool
}

// DefaultExportOptions returns the options used when none are configured.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{FlipV: true, WritePSA: true}
}
