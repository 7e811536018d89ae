package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonylturner/tlvscope/internal/capture"
	"github.com/tonylturner/tlvscope/internal/config"
	"github.com/tonylturner/tlvscope/internal/engine"
	"github.com/tonylturner/tlvscope/internal/logging"
	"github.com/tonylturner/tlvscope/internal/progress"
	"github.com/tonylturner/tlvscope/internal/report"
)

type dissectFlags struct {
	registryFlags
	inputFile  string
	dir        string
	max        int
	format     string
	hex        bool
	color      bool
	workers    int
	outputFile string
	csvFile    string
	noProgress bool
}

func newDissectCmd() *cobra.Command {
	flags := &dissectFlags{}

	cmd := &cobra.Command{
		Use:   "dissect",
		Short: "Dissect the frames of pcap or pcapng files",
		Long: `Dissect every frame of a capture file, or of all capture files under a
directory, and print one field tree per frame followed by a run summary.

Malformed frames never stop the run: problems are shown as diagnostics in
the tree. If --input is omitted, the first positional argument is used.`,
		Example: `  # Dissect one capture
  tlvscope dissect --input captures/bacnet.pcap

  # JSON for every capture in a directory, with a vendor catalog
  tlvscope dissect --dir captures --format json --catalog catalogs/example.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.inputFile == "" && flags.dir == "" && len(args) > 0 {
				flags.inputFile = args[0]
			}
			if flags.inputFile == "" && flags.dir == "" {
				return missingFlagError(cmd, "--input or --dir")
			}
			return runDissect(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.inputFile, "input", "", "Input capture file")
	cmd.Flags().StringVar(&flags.dir, "dir", "", "Directory searched recursively for .pcap/.pcapng files")
	cmd.Flags().IntVar(&flags.max, "max", 0, "Maximum frames per file (0 = all)")
	cmd.Flags().StringVar(&flags.format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&flags.hex, "hex", false, "Include a hexdump of every frame")
	cmd.Flags().BoolVar(&flags.color, "color", false, "Colorize text output")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Concurrent dissection workers (default from config)")
	cmd.Flags().StringVar(&flags.outputFile, "output", "", "Write the JSON report to this file instead of stdout")
	cmd.Flags().StringVar(&flags.csvFile, "csv", "", "Also write one CSV row per frame to this file")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")
	flags.registryFlags.bind(cmd)

	return cmd
}

// applyOverrides copies the flags the user set over the configuration.
func (f *dissectFlags) applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = f.format
	}
	if cmd.Flags().Changed("hex") {
		cfg.Output.Hex = f.hex
	}
	if cmd.Flags().Changed("color") {
		cfg.Output.Color = f.color
	}
	if cmd.Flags().Changed("workers") {
		cfg.Engine.Workers = f.workers
	}
	if f.outputFile != "" {
		cfg.Output.Format = "json"
	}
	return config.Validate(cfg)
}

func runDissect(cmd *cobra.Command, flags *dissectFlags) error {
	cfg, reg, err := flags.load()
	if err != nil {
		return err
	}
	if err := flags.applyOverrides(cmd, cfg); err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Close()
	// Stdout carries the dissection output.
	logger.SetOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr())

	inputs := []string{flags.inputFile}
	if flags.inputFile == "" {
		if inputs, err = capture.CollectFiles(flags.dir); err != nil {
			return err
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no capture files found in %s", flags.dir)
		}
	}
	logger.LogStartup(inputs, cfg.Engine.Workers, cfg.Engine.MaxDepth, cfg.Path)

	summary := report.NewSummary()
	bar := progress.New(len(inputs))
	bar.SetOutput(cmd.ErrOrStderr())
	if flags.noProgress || len(inputs) < 2 {
		bar.Disable()
	}

	eng := engine.New(reg, engine.Options{
		Limits:  cfg.Limits(),
		Workers: cfg.Engine.Workers,
		OnResult: func(r engine.Result) {
			summary.Add(r)
			bar.Frame()
			logger.LogFrame(r.Frame.Number, r.Protocol, r.Info, len(r.Diagnostics))
		},
	})

	out := cmd.OutOrStdout()
	sink := newResultSink(out, cfg)
	if flags.csvFile != "" {
		if sink.csv, err = report.NewCSVFile(flags.csvFile); err != nil {
			return err
		}
		defer sink.csv.Close()
	}
	for _, path := range inputs {
		bar.StartFile(path)
		summary.AddFile()

		frames, readErr := capture.ReadFrames(path, flags.max)
		if readErr != nil {
			logger.Error("%v", readErr)
		}
		logger.Verbose("%s: %d frames", path, len(frames))

		results, err := eng.DissectAll(cmd.Context(), frames)
		if err != nil {
			bar.Finish()
			return fmt.Errorf("dissect %s: %w", path, err)
		}
		if err := sink.file(path, results, readErr, logger); err != nil {
			bar.Finish()
			return err
		}
		bar.FinishFile()
	}
	bar.Finish()

	return sink.finish(summary.Report(), flags.outputFile)
}

// resultSink prints text frames as they are produced, or collects them
// into one JSON report.
type resultSink struct {
	out  io.Writer
	cfg  *config.Config
	text *report.TextRenderer
	run  *report.RunReport
	csv  *report.CSVWriter
}

func newResultSink(out io.Writer, cfg *config.Config) *resultSink {
	s := &resultSink{out: out, cfg: cfg}
	if cfg.Output.Format == "json" {
		s.run = report.NewRunReport(version)
	} else {
		s.text = report.NewTextRenderer(out, report.TextOptions{Color: cfg.Output.Color, Hex: cfg.Output.Hex})
	}
	return s
}

func (s *resultSink) file(path string, results []engine.Result, readErr error, logger *logging.Logger) error {
	if s.csv != nil {
		for _, r := range results {
			if err := s.csv.WriteFrame(path, r); err != nil {
				return err
			}
		}
	}
	if s.run != nil {
		fr := report.FileReport{Path: path, Frames: make([]report.FrameReport, 0, len(results))}
		if readErr != nil {
			fr.Error = readErr.Error()
		}
		for _, r := range results {
			fr.Frames = append(fr.Frames, report.NewFrameReport(r, s.cfg.Output.Hex))
		}
		s.run.Files = append(s.run.Files, fr)
		return nil
	}

	for _, r := range results {
		if logger.GetLevel() >= logging.LogLevelDebug {
			logger.LogHex(fmt.Sprintf("frame %d", r.Frame.Number), r.Frame.Data)
		}
		if err := s.text.Frame(r); err != nil {
			return fmt.Errorf("write frame %d: %w", r.Frame.Number, err)
		}
	}
	if readErr != nil {
		fmt.Fprintf(s.out, "%s: stopped early: %v\n\n", path, readErr)
	}
	return nil
}

func (s *resultSink) finish(sum report.SummaryReport, outputFile string) error {
	if s.csv != nil {
		if err := s.csv.Close(); err != nil {
			return fmt.Errorf("write CSV: %w", err)
		}
	}
	if s.run == nil {
		report.WriteSummary(s.out, sum)
		return nil
	}
	s.run.Summary = sum
	if outputFile != "" {
		if err := report.WriteJSONFile(outputFile, s.run); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Report written to %s\n", outputFile)
		return nil
	}
	return report.WriteJSON(s.out, s.run)
}

