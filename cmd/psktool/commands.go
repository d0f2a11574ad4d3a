package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/Faultbox/skelconv/internal/config"
	"github.com/Faultbox/skelconv/internal/gltfout"
	"github.com/Faultbox/skelconv/internal/logger"
	"github.com/Faultbox/skelconv/internal/pipeline"
	"github.com/Faultbox/skelconv/pkg/chunk"
	"github.com/Faultbox/skelconv/pkg/formats"
)

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "Output PSK path (default <out-dir>/<scene>.psk)")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usageError(fs, "export [-o out.psk] <scene.yaml>")
	}

	names, err := cfg.NameCodec()
	if err != nil {
		return err
	}
	opts := pipeline.ExportOptions{
		FrameRate: cfg.Export.FrameRate,
		FlipV:     cfg.Export.FlipV,
		Names:     names,
		WritePSA:  cfg.Export.WritePSA,
	}

	for _, scenePath := range fs.Args() {
		target := *out
		if target == "" || fs.NArg() > 1 {
			target = outputPath(cfg, scenePath, ".psk")
		}
		logger.Info("exporting", zap.String("scene", scenePath), zap.String("output", target))
		if _, _, err := pipeline.ExportFile(scenePath, target, opts); err != nil {
			return fmt.Errorf("%s: %w", scenePath, err)
		}
	}
	return nil
}

// outputPath places a file named after src, with ext, in the configured
// output directory or next to src.
func outputPath(cfg *config.Config, src, ext string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ext
	dir := cfg.Export.OutputDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	return filepath.Join(dir, base)
}

// fileKind returns the ID of the first chunk of a file.
func fileKind(data []byte) (string, error) {
	h, err := chunk.ReadHeader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

func formatOptions(cfg *config.Config) (formats.Options, error) {
	names, err := cfg.NameCodec()
	if err != nil {
		return formats.Options{}, err
	}
	return formats.Options{Names: names, StrictTypeFlag: cfg.Import.StrictTypeFlag}, nil
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	if _, err := setup(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usageError(fs, "info <file.psk|file.psa>")
	}

	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		headers, err := chunk.Scan(bytes.NewReader(data))
		fmt.Printf("File:   %s\n", path)
		fmt.Printf("Size:   %d bytes\n", len(data))
		fmt.Printf("Chunks: %d\n", len(headers))
		fmt.Println()
		for _, h := range headers {
			marker := ""
			if !h.HasMagic() {
				marker = "  (nonstandard type flag)"
			}
			fmt.Printf("  %s%s\n", h, marker)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Println()
	}
	return nil
}

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	limit := fs.Int("n", 10, "Records shown per table (0 = all)")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usageError(fs, "dump [-n N] <file.psk|file.psa>")
	}
	opts, err := formatOptions(cfg)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	kind, err := fileKind(data)
	if err != nil {
		return err
	}

	dumper := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	switch kind {
	case "ACTRHEAD":
		psk, err := formats.ParsePSKWith(data, opts)
		if err != nil {
			return err
		}
		dumpTable(dumper, "Points", psk.Points, *limit)
		dumpTable(dumper, "Wedges", psk.Wedges, *limit)
		dumpTable(dumper, "Faces", psk.Faces, *limit)
		dumpTable(dumper, "Materials", psk.Materials, *limit)
		dumpTable(dumper, "Bones", psk.Bones, *limit)
		dumpTable(dumper, "Influences", psk.Influences, *limit)
	case "ANIMHEAD":
		psa, err := formats.ParsePSAWith(data, opts)
		if err != nil {
			return err
		}
		dumpTable(dumper, "Bones", psa.Bones, *limit)
		dumpTable(dumper, "Animations", psa.Animations, *limit)
		dumpTable(dumper, "Keys", psa.Keys, *limit)
	default:
		return fmt.Errorf("unrecognized first chunk %q", kind)
	}
	return nil
}

func dumpTable[T any](dumper spew.ConfigState, name string, items []T, limit int) {
	fmt.Printf("%s (%d):\n", name, len(items))
	shown := items
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	dumper.Dump(shown)
	if len(shown) < len(items) {
		fmt.Printf("  ... %d more\n", len(items)-len(shown))
	}
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	out := fs.String("o", "", "Output glTF path (default <file>.glb)")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usageError(fs, "import [-o out.glb] <file.psk>")
	}
	opts, err := formatOptions(cfg)
	if err != nil {
		return err
	}

	src := fs.Arg(0)
	model, err := pipeline.ImportFile(src, pipeline.ImportOptions{
		Formats: opts,
		FlipV:   cfg.Import.FlipV,
		LoadPSA: cfg.Import.LoadPSA,
	})
	if err != nil {
		return err
	}

	target := *out
	if target == "" {
		target = strings.TrimSuffix(src, filepath.Ext(src)) + ".glb"
	}
	var buf bytes.Buffer
	if err := gltfout.Write(&buf, model); err != nil {
		return err
	}
	if err := os.WriteFile(target, buf.Bytes(), 0644); err != nil {
		return err
	}
	animations := 0
	if model.Animation != nil {
		animations = len(model.Animation.Animations)
	}
	logger.Info("wrote preview",
		zap.String("path", target),
		zap.Int("bytes", buf.Len()),
		zap.Int("animations", animations),
	)
	return nil
}

func cmdKeys(args []string) error {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usageError(fs, "keys <file.psa> [action]")
	}
	opts, err := formatOptions(cfg)
	if err != nil {
		return err
	}

	psa, err := formats.ParsePSAFile(fs.Arg(0), opts)
	if err != nil {
		return err
	}
	only := fs.Arg(1)

	found := false
	for i, info := range psa.Animations {
		if only != "" && info.Name != only {
			continue
		}
		found = true
		keys, err := psa.ActionKeys(i)
		if err != nil {
			return fmt.Errorf("action %q: %w", info.Name, err)
		}
		fmt.Printf("%s: %d frames at %.2f fps, %d bones, %.3fs\n",
			info.Name, info.NumRawFrames, info.AnimRate, info.TotalBones, info.TrackTime)

		bones := int(info.TotalBones)
		for k, key := range keys {
			frame, bone := k/max(bones, 1), k%max(bones, 1)
			name := "?"
			if bone < len(psa.Bones) {
				name = psa.Bones[bone].Name
			}
			fmt.Printf("  %4d %-20s pos=(%.3f %.3f %.3f) rot=(%.3f %.3f %.3f %.3f) t=%.4f\n",
				frame, name,
				key.Position[0], key.Position[1], key.Position[2],
				key.Orientation.X, key.Orientation.Y, key.Orientation.Z, key.Orientation.W,
				key.Time)
		}
	}
	if only != "" && !found {
		return fmt.Errorf("no action named %q", only)
	}
	return nil
}

func cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	save := fs.Bool("save", false, "Write the effective config to the user config directory")
	out := fs.String("o", "", "Write the effective config to this path")
	encodings := fs.Bool("encodings", false, "List the accepted name encodings")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	switch {
	case *encodings:
		for _, name := range chunk.Encodings() {
			fmt.Println(name)
		}
	case *out != "":
		if err := cfg.SaveTo(*out); err != nil {
			return err
		}
		logger.Info("saved config", zap.String("path", *out))
	case *save:
		path, err := cfg.Save()
		if err != nil {
			return err
		}
		logger.Info("saved config", zap.String("path", path))
	default:
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	return nil
}
