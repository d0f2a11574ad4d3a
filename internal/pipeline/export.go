package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/skelconv/internal/logger"
	"github.com/Faultbox/skelconv/pkg/anim"
	"github.com/Faultbox/skelconv/pkg/chunk"
	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/geometry"
	"github.com/Faultbox/skelconv/pkg/scene"
	"github.com/Faultbox/skelconv/pkg/skeleton"
)

// ExportResult holds the files of one export before they are written. PSA
// is nil when there is no animation to write.
type ExportResult struct {
	PSK    *formats.PSK
	PSA    *formats.PSA
	Report *ExportReport
}

// Export converts a scene. Meshes are processed first, then armatures,
// then actions; the first fatal error aborts the export.
func Export(s *scene.Scene, opts ExportOptions) (*ExportResult, error) {
	report := &ExportReport{}
	psk := &formats.PSK{}

	geo := geometry.NewBuilder(geometry.Options{FlipV: opts.FlipV})
	for _, m := range s.Meshes() {
		logger.Debug("mesh pass", zap.String("mesh", m.Name), zap.Int("faces", len(m.Faces)))
		if err := geo.AddMesh(m); err != nil {
			return nil, stageErr(StageMesh, errors.Wrapf(err, "mesh %q", m.Name))
		}
	}
	geo.Fill(psk)
	report.Discarded = geo.Discarded

	ctx := skeleton.NewContext()
	for _, arm := range s.Armatures() {
		logger.Debug("armature pass", zap.String("armature", arm.Name), zap.Int("bones", len(arm.Bones)))
		if _, err := ctx.AddArmature(arm); err != nil {
			return nil, stageErr(StageArmature, errors.Wrapf(err, "armature %q", arm.Name))
		}
	}
	psk.Bones = append([]formats.Bone(nil), ctx.Bones...)
	psk.Influences, report.UnmatchedGroups = skeleton.Influences(psk.Bones, geo.VertexGroups())

	if err := psk.Validate(); err != nil {
		return nil, stageErr(StageWrite, errors.Wrap(err, "mesh file"))
	}

	report.Points = len(psk.Points)
	report.Wedges = len(psk.Wedges)
	report.Faces = len(psk.Faces)
	report.Materials = len(psk.Materials)
	report.Bones = len(psk.Bones)
	report.Influences = len(psk.Influences)

	res := &ExportResult{PSK: psk, Report: report}
	if !opts.WritePSA || len(ctx.Armatures) == 0 || len(s.Actions) == 0 {
		return res, nil
	}

	rate := s.FrameRate
	if opts.FrameRate > 0 {
		rate = opts.FrameRate
	}
	sampler := s.Poses
	if sampler == nil {
		sampler = anim.RestSampler(ctx)
	}
	sampled, err := anim.Sample(ctx, sampler, s.Actions, rate)
	if err != nil {
		return nil, stageErr(StageAnimation, errors.Wrapf(err, "sampling at %v fps", rate))
	}
	report.EmptyActions = sampled.Warnings

	psa := &formats.PSA{
		Bones:      ctx.Registry.Bones(),
		Animations: sampled.Animations,
		Keys:       sampled.Keys,
	}
	if !psa.IsEmpty() {
		res.PSA = psa
		report.PSABones = len(psa.Bones)
		report.Synthesized = ctx.Registry.Synthesized()
		report.Actions = len(psa.Animations)
		report.Keys = len(psa.Keys)
	}
	return res, nil
}

// AnimationPath returns the animation file path paired with a mesh path.
func AnimationPath(pskPath string) string {
	return strings.TrimSuffix(pskPath, filepath.Ext(pskPath)) + ".psa"
}

// WriteFiles encodes both files in memory and writes them next to each
// other. It returns the paths written. Both files are staged as temp files
// before either is renamed into place; if any step fails the temp files
// are removed and a mesh file that existed before the call is restored.
func WriteFiles(res *ExportResult, pskPath string, names *chunk.NameCodec) ([]string, error) {
	pskData, err := res.PSK.Bytes(names)
	if err != nil {
		return nil, stageErr(StageWrite, errors.Wrap(err, "encoding mesh file"))
	}
	var psaData []byte
	if res.PSA != nil {
		if psaData, err = res.PSA.Bytes(names); err != nil {
			return nil, stageErr(StageWrite, errors.Wrap(err, "encoding animation file"))
		}
	}

	pskTmp, err := stageFile(pskPath, pskData)
	if err != nil {
		return nil, stageErr(StageWrite, err)
	}
	if psaData == nil {
		if err := commit(pskTmp, pskPath); err != nil {
			return nil, stageErr(StageWrite, err)
		}
		return []string{pskPath}, nil
	}

	psaPath := AnimationPath(pskPath)
	psaTmp, err := stageFile(psaPath, psaData)
	if err != nil {
		os.Remove(pskTmp)
		return nil, stageErr(StageWrite, err)
	}

	restore, err := backup(pskPath)
	if err != nil {
		os.Remove(pskTmp)
		os.Remove(psaTmp)
		return nil, stageErr(StageWrite, err)
	}
	if err := commit(pskTmp, pskPath); err != nil {
		os.Remove(psaTmp)
		restore(true)
		return nil, stageErr(StageWrite, err)
	}
	if err := commit(psaTmp, psaPath); err != nil {
		restore(true)
		return nil, stageErr(StageWrite, err)
	}
	restore(false)
	return []string{pskPath, psaPath}, nil
}

// stageFile writes data to a temp file in the directory of path and
// returns the temp file name.
func stageFile(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return "", errors.Wrapf(err, "creating temp file for %s", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Wrapf(err, "writing %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrapf(err, "closing %s", path)
	}
	return tmpName, nil
}

// commit renames a staged temp file into place, removing it on failure.
func commit(tmpName, path string) error {
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming into %s", path)
	}
	return nil
}

// backup moves an existing file at path aside. The returned function either
// puts it back (undo true) or discards it. Nothing is moved when path does
// not exist.
func backup(path string) (func(undo bool), error) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return func(undo bool) {
			if undo {
				os.Remove(path)
			}
		}, nil
	}
	saved := path + ".bak"
	if err := os.Rename(path, saved); err != nil {
		return nil, errors.Wrapf(err, "backing up %s", path)
	}
	return func(undo bool) {
		if !undo {
			if err := os.Remove(saved); err != nil {
				logger.Warn("could not remove backup", zap.String("path", saved), zap.Error(err))
			}
			return
		}
		if err := os.Rename(saved, path); err != nil {
			logger.Error("could not restore previous file",
				zap.String("path", path), zap.String("backup", saved), zap.Error(err))
		}
	}, nil
}

// ExportFile loads a scene document, exports it and writes the files. The
// report is logged on success.
func ExportFile(docPath, pskPath string, opts ExportOptions) (*ExportResult, []string, error) {
	doc, err := scene.LoadDocument(docPath)
	if err != nil {
		return nil, nil, stageErr(StageRead, err)
	}
	s, err := doc.Scene()
	if err != nil {
		return nil, nil, stageErr(StageRead, errors.Wrapf(err, "scene %s", docPath))
	}

	res, err := Export(s, opts)
	if err != nil {
		return nil, nil, err
	}
	written, err := WriteFiles(res, pskPath, opts.Names)
	if err != nil {
		return nil, nil, err
	}
	for _, path := range written {
		logger.Info("wrote file", zap.String("path", path))
	}
	res.Report.Log()
	return res, written, nil
}
