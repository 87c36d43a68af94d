package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screen-grader/src/answerkey"
	"screen-grader/src/capture"
	"screen-grader/src/config"
	"screen-grader/src/credentials"
	"screen-grader/src/logutil"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type cliOptions struct {
	settingsFile string
	verbose      bool

	filePath   string
	jsonOutput bool

	ocrKey string
	llmKey string
}

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := runWithArgs(ctx, normalizeLegacyArgs(os.Args), streams{os.Stdin, os.Stdout, os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(ctx context.Context, args []string, s streams) error {
	if len(args) == 0 {
		args = []string{"grader-cli"}
	}
	cmd := newRootCmd(&cliOptions{}, s)
	cmd.SetArgs(args[1:])
	cmd.SetIn(s.in)
	cmd.SetOut(s.out)
	cmd.SetErr(s.err)
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(opts *cliOptions, s streams) *cobra.Command {
	root := &cobra.Command{
		Use:           "grader-cli",
		Short:         "Grade answer sheets and manage service keys",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logutil.Setup(false, s.err)
			} else {
				logutil.Setup(false, io.Discard)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.settingsFile, "settings", "", "Path to the settings file holding the service keys")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")

	root.AddCommand(newGradeCmd(opts, s), newKeysCmd(opts, s))
	return root
}

func newGradeCmd(opts *cliOptions, s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Run OCR and the answer model on a PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrade(cmd.Context(), *opts, s)
		},
	}
	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newKeysCmd(opts *cliOptions, s streams) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Show, set or clear the OCR.space and Kimi keys",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored keys, redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*opts)
			if err != nil {
				return err
			}
			c, err := store.Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "settings: %s\n", store.Path())
			fmt.Fprintf(s.out, "ocr_api_key:  %s\n", displayKey(c.OCRKey))
			fmt.Fprintf(s.out, "kimi_api_key: %s\n", displayKey(c.LLMKey))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Store the OCR.space and Kimi keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysSet(*opts, s)
		},
	}
	set.Flags().StringVar(&opts.ocrKey, "ocr-key", "", "OCR.space API key")
	set.Flags().StringVar(&opts.llmKey, "kimi-key", "", "Kimi (Moonshot) API key, starts with sk-")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove both stored keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*opts)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(s.out, "Keys cleared")
			return nil
		},
	}

	keys.AddCommand(show, set, clearCmd)
	return keys
}

func openStore(opts cliOptions) (*credentials.Store, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{SettingsFileOverride: opts.settingsFile})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return credentials.NewStore(cfg.SettingsFile), nil
}

func runKeysSet(opts cliOptions, s streams) error {
	ocrKey := strings.TrimSpace(opts.ocrKey)
	llmKey := strings.TrimSpace(opts.llmKey)
	if ocrKey == "" || llmKey == "" {
		return errors.New("both --ocr-key and --kimi-key are required")
	}
	if !strings.HasPrefix(llmKey, "sk-") {
		return errors.New("Kimi key must start with sk-")
	}
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	if err := store.Save(ocrKey, llmKey); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Keys saved to %s\n", store.Path())
	return nil
}

func displayKey(k string) string {
	if k == "" {
		return "(not set)"
	}
	return logutil.RedactKey(k)
}

func runGrade(ctx context.Context, opts cliOptions, s streams) error {
	cfg, err := config.LoadWithOptions(config.LoadOptions{SettingsFileOverride: opts.settingsFile})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	creds, err := credentials.NewStore(cfg.SettingsFile).Load()
	if err != nil {
		return err
	}
	if !creds.Complete() {
		return fmt.Errorf("missing %s; run `grader-cli keys set`", strings.Join(creds.Missing(), " and "))
	}

	imageData, err := readImage(opts.filePath, s.in)
	if err != nil {
		return err
	}
	log.Printf("CLI: grading %d bytes from %s", len(imageData), opts.filePath)

	start := time.Now()
	text, err := answerkey.FromConfig(cfg).Run(ctx, imageData, creds, func(status string) {
		if opts.verbose {
			fmt.Fprintf(s.err, "[verbose] %s\n", status)
		}
	})
	if err != nil {
		return fmt.Errorf("grading failed: %w", err)
	}
	return outputResult(s.out, text, opts.filePath, time.Since(start), opts.jsonOutput)
}

func readImage(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}

	if len(data) == 0 {
		return nil, errors.New("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if !capture.IsPNG(data) {
		return nil, errors.New("input is not a valid PNG file (invalid magic number)")
	}
	return data, nil
}

// GradeResult is the --json output.
type GradeResult struct {
	Answers   string  `json:"answers"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	Lines     int     `json:"line_count"`
}

func outputResult(w io.Writer, text, sourcePath string, elapsed time.Duration, jsonOutput bool) error {
	if !jsonOutput {
		fmt.Fprintln(w, text)
		return nil
	}
	result := GradeResult{
		Answers:   text,
		Source:    sourcePath,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		Lines:     len(strings.Split(text, "\n")),
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// normalizeLegacyArgs accepts Go-style single-dash long flags.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "json", "verbose", "settings", "ocr-key", "kimi-key"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}
