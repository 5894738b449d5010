package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/maauso/mediatools-api/internal/bootstrap"
	"github.com/maauso/mediatools-api/internal/job"
	"github.com/maauso/mediatools-api/internal/tools"
)

type runOptions struct {
	format   string
	quality  string
	segments []string
	outDir   string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <tool> <file>",
		Short: "Run one tool on a local file and write the results",
		Example: `  mediactl run audio-extract talk.mp4 --format mp3 --quality 320k
  mediactl run video-split match.mp4 --segment 00:00:00,00:05:00,first --segment 00:05:00,00:10:00`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), root, opts, args[0], args[1], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (default per tool)")
	cmd.Flags().StringVarP(&opts.quality, "quality", "q", "", "Quality preset (default per format)")
	cmd.Flags().StringArrayVarP(&opts.segments, "segment", "s", nil, "Segment as start,end[,name] (repeatable)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "Directory to write results to")

	return cmd
}

func runTool(ctx context.Context, root *rootOptions, opts *runOptions, tool, file string, stdout, stderr io.Writer) error {
	segments, err := parseSegmentFlags(opts.segments)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.NewLoggerTo(stderr)

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close(context.WithoutCancel(ctx)) }()

	submitted, err := deps.Jobs.Submit(ctx, job.Request{
		Tool:      tools.Tool(tool),
		Format:    opts.format,
		Quality:   opts.quality,
		Segments:  segments,
		InputName: filepath.Base(file),
		Input:     data,
	})
	if err != nil {
		return fmt.Errorf("%s: %s", tool, job.DisplayMessage(err))
	}

	events, unsubscribe, err := deps.Jobs.Subscribe(ctx, submitted.ID)
	if err != nil {
		return err
	}
	printer := newProgressPrinter(stdout)
	err = followEvents(ctx, events, printer)
	unsubscribe()
	printer.Done()
	if err != nil {
		return err
	}

	final, err := deps.Jobs.Wait(ctx, submitted.ID)
	if err != nil {
		return err
	}
	if final.Status == job.StatusFailed {
		return fmt.Errorf("%s failed (%s): %s", tool, final.ErrorKind, final.Error)
	}

	for _, h := range final.Results {
		_, content, err := deps.Results.Open(ctx, h.ID)
		if err != nil {
			return fmt.Errorf("open result %s: %w", h.Name, err)
		}
		path := filepath.Join(opts.outDir, h.Name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		fmt.Fprintf(stdout, "wrote %s (%s)\n", path, humanize.IBytes(uint64(len(content))))
	}
	return nil
}

// followEvents prints events until the stream closes or ctx is cancelled.
func followEvents(ctx context.Context, events <-chan job.Event, printer *progressPrinter) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printer.Print(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseSegmentFlags turns "start,end[,name]" values into segments. Bounds are
// validated by the job service.
func parseSegmentFlags(values []string) ([]tools.Segment, error) {
	segments := make([]tools.Segment, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid --segment %q: want start,end[,name]", v)
		}
		seg := tools.Segment{Start: strings.TrimSpace(parts[0]), End: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			seg.Name = strings.TrimSpace(parts[2])
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// progressPrinter renders job events. On a terminal the latest progress line
// is redrawn in place; otherwise every event gets its own line.
type progressPrinter struct {
	w      io.Writer
	inline bool
	dirty  bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, inline: isTerminal(w)}
}

func (p *progressPrinter) Print(ev job.Event) {
	msg := ev.Message
	if ev.Phase == job.PhaseFailed && ev.Error != "" {
		msg = ev.Error
	}
	if msg == "" {
		return
	}
	if p.inline && ev.Phase == job.PhaseProgress {
		fmt.Fprintf(p.w, "\r\033[K%s", msg)
		p.dirty = true
		return
	}
	p.Done()
	fmt.Fprintf(p.w, "[%s] %s\n", ev.Phase, msg)
}

// Done ends an in-place line so later output starts on a fresh one.
func (p *progressPrinter) Done() {
	if p.dirty {
		fmt.Fprintln(p.w)
		p.dirty = false
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
