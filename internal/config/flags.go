package config

import "flag"

// Flags holds the command-line overrides registered on a FlagSet.
type Flags struct {
	Config    *string
	Debug     *bool
	LogFile   *string
	FrameRate *float64
	NoFlipV   *bool
	NoPSA     *bool
	OutputDir *string
	Strict    *bool
	Encoding  *string
}

// RegisterFlags adds the shared overrides to fs. Call it before fs.Parse.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Config:    fs.String("config", "", "Path to config file"),
		Debug:     fs.Bool("debug", false, "Enable debug logging"),
		LogFile:   fs.String("log-file", "", "Write logs to this file"),
		FrameRate: fs.Float64("fps", 0, "Override the animation frame rate"),
		NoFlipV:   fs.Bool("no-flip-v", false, "Keep texture V as authored"),
		NoPSA:     fs.Bool("no-psa", false, "Skip the animation file on export and import"),
		OutputDir: fs.String("out-dir", "", "Directory for exported files"),
		Strict:    fs.Bool("strict", false, "Reject chunks without the standard type flag"),
		Encoding:  fs.String("encoding", "", "Code page of names (e.g. windows-1252, raw)"),
	}
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.Config
}

// apply copies set overrides into cfg.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if *f.Debug {
		cfg.Logging.Level = "debug"
	}
	if *f.LogFile != "" {
		cfg.Logging.LogFile = *f.LogFile
	}
	if *f.FrameRate > 0 {
		cfg.Export.FrameRate = float32(*f.FrameRate)
	}
	if *f.NoFlipV {
		cfg.Export.FlipV = false
		cfg.Import.FlipV = false
	}
	if *f.NoPSA {
		cfg.Export.WritePSA = false
		cfg.Import.LoadPSA = false
	}
	if *f.OutputDir != "" {
		cfg.Export.OutputDir = *f.OutputDir
	}
	if *f.Strict {
		cfg.Import.StrictTypeFlag = true
	}
	if *f.Encoding != "" {
		cfg.Names.Encoding = *f.Encoding
	}
}
