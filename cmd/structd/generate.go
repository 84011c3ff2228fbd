package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"structd/internal/manager"
	"structd/pkg/types"
)

type generateFlags struct {
	input        string
	useCloud     bool
	clipDuration float64
	systemPrompt string
	raw          bool
	extra        string
}

func newGenerateCmd(o *options) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate [file]",
		Short: "Run one generation and print the result as JSON",
		Long: "Reads the input from --input, the given file or stdin. Structured generation\n" +
			"shows the live preview on stderr and prints the final done line on stdout;\n" +
			"--raw prints the completion. Ctrl+C stops the running request.",
		Example: "  echo 'Boil water, then add pasta.' | structd generate --model tiny.gguf\n  structd generate --cloud notes.txt",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(f.input, args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), o, f, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.input, "input", "", "Input text (otherwise read from file or stdin)")
	fl.BoolVar(&f.useCloud, "cloud", false, "Use the remote backend")
	fl.Float64Var(&f.clipDuration, "clip-duration", -1, "Clip duration in seconds; enables timed steps")
	fl.StringVar(&f.systemPrompt, "system", "", "System prompt override")
	fl.BoolVar(&f.raw, "raw", false, "Free-text completion instead of structured steps")
	fl.StringVar(&f.extra, "extra", "", "Extra context for --raw")
	return cmd
}

func readInput(flag string, args []string, stdin io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if len(args) == 1 && args[0] != "-" {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := io.ReadAll(bufio.NewReader(stdin))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errors.New("no input: pass --input, a file or pipe text on stdin")
	}
	return string(b), nil
}

func runGenerate(ctx context.Context, o *options, f *generateFlags, input string, out, preview io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := buildManager(o.cfg, o.log, nil)
	if err != nil {
		return err
	}
	defer mgr.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
			if mgr.Stop() {
				o.log.Info().Msg("stopped by signal")
			}
		case <-done:
		}
	}()

	if f.raw {
		resp, err := mgr.GenerateRaw(ctx, types.RawRequest{Input: input, ExtraContext: f.extra, UseCloud: f.useCloud})
		if err != nil {
			return describe(err)
		}
		return json.NewEncoder(out).Encode(resp)
	}

	req := types.GenerateRequest{
		Input:        input,
		Grammar:      o.cfg.Grammar,
		SystemPrompt: f.systemPrompt,
		UseCloud:     f.useCloud,
	}
	if f.clipDuration >= 0 {
		d := f.clipDuration
		req.ClipDuration = &d
	}
	return describe(mgr.Generate(ctx, req, &lineRouter{out: out, preview: preview}, nil))
}

// lineRouter receives the NDJSON stream of one generation. Preview lines are
// rendered as text on preview; every other line is copied to out.
type lineRouter struct {
	out     io.Writer
	preview io.Writer
	buf     []byte
}

func (r *lineRouter) Write(p []byte) (int, error) {
	r.buf = append(r.buf, p...)
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := r.buf[:i+1]
		var pl struct {
			Preview *string `json:"preview"`
		}
		if json.Unmarshal(line, &pl) == nil && pl.Preview != nil {
			if _, err := fmt.Fprintf(r.preview, "---\n%s", *pl.Preview); err != nil {
				return 0, err
			}
		} else if _, err := r.out.Write(line); err != nil {
			return 0, err
		}
		r.buf = r.buf[i+1:]
	}
}

// describe prefixes manager errors with their kind so scripts can match them.
func describe(err error) error {
	if err == nil {
		return nil
	}
	if manager.IsTooBusy(err) {
		return fmt.Errorf("too busy: %w", err)
	}
	return err
}
