package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"screen-grader/src/answerkey"
	"screen-grader/src/capture"
	"screen-grader/src/clipboard"
	"screen-grader/src/config"
	"screen-grader/src/credentials"
	"screen-grader/src/cropsession"
	"screen-grader/src/eventloop"
	"screen-grader/src/hotkey"
	"screen-grader/src/logutil"
	"screen-grader/src/messages"
	"screen-grader/src/overlay"
	"screen-grader/src/presentation"
	"screen-grader/src/router"
	"screen-grader/src/screenshot"
	"screen-grader/src/singleinstance"
	"screen-grader/src/tray"
)

const appID = "io.github.screen-grader"

type mainOptions struct {
	settingsFile string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := normalizeLegacyArgs(os.Args)
	cmd := newRootCmd(&mainOptions{})
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "screen-grader",
		Short:         "Resident answer-sheet grader: hotkey, crop, OCR, answer key",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(*opts, false)
		},
	}
	root.PersistentFlags().StringVar(&opts.settingsFile, "settings", "", "Path to the settings file holding the service keys")

	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Start a grading run in the resident instance, launching it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(*opts)
			return handleWithDelegation(cmd.Context(), singleinstance.CommandTrigger, singleinstance.Delegate, func() error {
				return runResident(*opts, true)
			})
		},
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the status panel of the resident instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(*opts)
			return handleWithDelegation(cmd.Context(), singleinstance.CommandShow, singleinstance.Delegate, func() error {
				return errors.New("no resident instance is running")
			})
		},
	}
	root.AddCommand(trigger, show)
	return root
}

// loadEnv applies the .env file so SINGLEINSTANCE_PORT_* are set before the
// delegation scan.
func loadEnv(opts mainOptions) {
	_, _ = config.LoadWithOptions(config.LoadOptions{SettingsFileOverride: opts.settingsFile})
}

type delegateFunc func(ctx context.Context, cmd singleinstance.Command) (bool, error)

// handleWithDelegation hands cmd to a running resident; without one, or when
// delegation fails, fallback runs in this process.
func handleWithDelegation(ctx context.Context, cmd singleinstance.Command, delegate delegateFunc, fallback func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	delegated, err := delegate(ctx, cmd)
	cancel()
	switch {
	case err != nil:
		log.Printf("Delegation error: %v; running standalone", err)
	case delegated:
		log.Printf("Delegated %s to resident", cmd)
		return nil
	default:
		log.Printf("No resident detected, running standalone")
	}
	return fallback()
}

func runResident(opts mainOptions, triggerOnStart bool) error {
	cfg, err := config.LoadWithOptions(config.LoadOptions{SettingsFileOverride: opts.settingsFile})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logutil.Setup(cfg.EnableFileLogging, os.Stderr)

	enableDPIAwareness()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := singleinstance.Listen(ctx)
	if err != nil {
		if errors.Is(err, singleinstance.ErrAlreadyRunning) {
			return fmt.Errorf("screen-grader is already running; use `screen-grader trigger`")
		}
		return err
	}
	defer srv.Close()

	log.Printf("Screen Grader starting: hotkey %s, model %s, settings %s", cfg.Hotkey, cfg.LLMModel, cfg.SettingsFile)

	a := app.NewWithID(appID)
	a.SetIcon(tray.Icon)
	panel := overlay.NewPanel(a, "Screen Grader")
	panel.Window().SetIcon(tray.Icon)
	ov := overlay.New(a)

	r := router.NewRouter()
	defer r.Shutdown()
	controlInbox, err := r.Register(messages.ContextControl, 16)
	if err != nil {
		return err
	}
	presInbox, err := r.Register(messages.ContextPresentation, 16)
	if err != nil {
		return err
	}

	store := credentials.NewStore(cfg.SettingsFile)
	capturer := &capture.Capturer{Source: screenshot.Primary(), Ratio: ratioFunc(cfg, ov)}
	loop := eventloop.New(r, controlInbox, store, capturer, answerkey.FromConfig(cfg))

	cropper := capture.NewCropper(cropsession.NewController(ov), cfg.MinSelectionPx)
	host := presentation.NewHost(r, presInbox, presentation.Multi{panel, &presentation.LogDisplay{}}, cropper)
	if cfg.CopyToClipboard {
		if w, err := clipboard.Init(); err != nil {
			log.Printf("Clipboard unavailable: %v", err)
		} else {
			copier := clipboard.NewCopier(w, eventloop.NAPrefix, answerkey.NotAvailable)
			host.OnAnswers = func(text string) { copier.Copy(text) }
		}
	}

	tray.Setup(a, cfg.Hotkey, tray.Actions{Grade: loop.Trigger, ShowPanel: panel.Show})

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s stopped: %v", name, err)
			}
		}()
	}
	spawn("event loop", loop.Run)
	spawn("presentation", host.Run)
	spawn("single-instance server", func(ctx context.Context) error {
		return srv.Serve(ctx, residentHandler(loop.Trigger, panel.Show))
	})
	spawn("hotkey", func(ctx context.Context) error {
		return hotkey.Listen(ctx, cfg.Hotkey, loop.Trigger)
	})

	a.Lifecycle().SetOnStarted(func() {
		firstRunHint(store, panel)
		if triggerOnStart {
			loop.Trigger()
		}
	})

	// fyne owns the main goroutine; a signal or tray Quit ends a.Run.
	stop := context.AfterFunc(ctx, func() { fyne.Do(a.Quit) })
	defer stop()
	a.Run()

	cancel()
	wg.Wait()
	log.Printf("Screen Grader stopped")
	return nil
}

func ratioFunc(cfg *config.Config, ov *overlay.Overlay) capture.RatioFunc {
	if cfg.DevicePixelRatio > 0 {
		dpr := cfg.DevicePixelRatio
		return func() float64 { return dpr }
	}
	return ov.Scale
}

func residentHandler(trigger, show func()) singleinstance.Handler {
	return func(c singleinstance.Command) error {
		switch c {
		case singleinstance.CommandTrigger:
			trigger()
		case singleinstance.CommandShow:
			show()
		default:
			return fmt.Errorf("%w: %s", singleinstance.ErrUnknownCommand, c)
		}
		return nil
	}
}

type warnStore interface {
	Load() (credentials.Credentials, error)
	MarkWarned() error
}

// firstRunHint shows the missing-keys message once per settings file.
func firstRunHint(store warnStore, display presentation.Display) bool {
	c, err := store.Load()
	if err != nil {
		log.Printf("First run check: %v", err)
		return false
	}
	if c.Complete() || c.Warned {
		return false
	}
	log.Printf("First run: missing %s", strings.Join(c.Missing(), ", "))
	display.SetText(eventloop.NAPrefix + eventloop.ErrMissingCredentials.Error())
	if err := store.MarkWarned(); err != nil {
		log.Printf("First run: %v", err)
	}
	return true
}

// normalizeLegacyArgs maps single-dash long flags to cobra's double dash.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return []string{"screen-grader"}
	}
	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		switch {
		case arg == "-settings", strings.HasPrefix(arg, "-settings="):
			normalized[i] = "-" + arg
		case arg == "--run-once", arg == "-run-once":
			normalized[i] = "trigger"
		}
	}
	return normalized
}
