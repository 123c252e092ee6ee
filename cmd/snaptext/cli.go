package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
	"github.com/ironsheep/snaptext/internal/ocr"
	"github.com/ironsheep/snaptext/internal/panel"
	"github.com/ironsheep/snaptext/internal/record"
	"github.com/ironsheep/snaptext/internal/server"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "snaptext",
		Usage:   "Capture screen regions, extract their text, review and edit it",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Aliases: []string{"d"}, EnvVars: []string{"SNAPTEXT_DATA_DIR"}, Usage: "Data directory (default ~/.snaptext)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file (json or yaml)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "Environment file loaded before config"},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			serveCmd(),
			httpCmd(),
			captureCmd(),
			frameCmd(),
			listCmd(),
			updateCmd(),
			deleteCmd(),
			clearCmd(),
			ocrCmd(),
			exportCmd(),
			versionCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// signalContext is c.Context cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Speak the JSON-lines protocol on stdin/stdout (default)",
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	e, err := openEnv(c, needs{page: true, bridge: true})
	if err != nil {
		return outputError(err)
	}
	defer e.Close()

	ctx, cancel := signalContext(c)
	defer cancel()
	e.startBackground(ctx)

	e.logger.Info("snaptext serving", "version", Version, "data_dir", e.dataDir, "capture_source", e.cfg.CaptureSource)
	srv := server.New(e.coord, e.logger)

	// Reads from stdin do not observe ctx; a signal ends the command
	// without waiting for the next line.
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, c.App.Reader, c.App.Writer) }()
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			return outputError(err)
		}
	case <-ctx.Done():
	}
	return nil
}

// httpCmd creates the http command.
func httpCmd() *cli.Command {
	return &cli.Command{
		Name:  "http",
		Usage: "Serve the REST and server-sent events interface",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config http_addr)"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c, needs{page: true, bridge: true})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			addr := c.String("addr")
			if addr == "" {
				addr = e.cfg.HTTPAddr
			}

			ctx, cancel := signalContext(c)
			defer cancel()
			e.startBackground(ctx)

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           server.New(e.coord, e.logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()
			e.logger.Info("snaptext http listening", "addr", addr)

			select {
			case err := <-errCh:
				return outputError(errors.NewInternal(err))
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				// Event streams hold connections open until closed.
				_ = httpSrv.Close()
			}
			return nil
		},
	}
}

func boundsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "x", Usage: "Left edge in CSS pixels"},
		&cli.IntFlag{Name: "y", Usage: "Top edge in CSS pixels"},
		&cli.IntFlag{Name: "width", Usage: "Width in CSS pixels"},
		&cli.IntFlag{Name: "height", Usage: "Height in CSS pixels"},
	}
}

func boundsFrom(c *cli.Context) record.Bounds {
	return record.Bounds{X: c.Int("x"), Y: c.Int("y"), Width: c.Int("width"), Height: c.Int("height")}
}

// captureCmd creates the capture command.
func captureCmd() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture a region and store it",
		Flags: append(boundsFlags(),
			&cli.StringFlag{Name: "url", Usage: "Open this page before capturing (browser source)"},
		),
		Action: func(c *cli.Context) error {
			b := boundsFrom(c)
			if err := b.Validate(); err != nil {
				return outputError(err)
			}
			e, err := openEnv(c, needs{page: true, bridge: true, pageURL: c.String("url")})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			res, err := e.coord.CaptureRegion(c.Context, b)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, res)
		},
	}
}

// frameCmd creates the frame command.
func frameCmd() *cli.Command {
	return &cli.Command{
		Name:  "frame",
		Usage: "Write the full viewport (or a crop of it) to a PNG file",
		Flags: append(boundsFlags(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "frame.png", Usage: "Output file"},
		),
		Action: func(c *cli.Context) error {
			e, err := openEnv(c, needs{page: true})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			var bounds *record.Bounds
			if c.IsSet("width") || c.IsSet("height") {
				b := boundsFrom(c)
				bounds = &b
			}
			res, err := e.coord.CaptureFullFrame(c.Context, bounds)
			if err != nil {
				return outputError(err)
			}
			out := c.String("out")
			if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(c, map[string]any{"path": out, "width": res.Width, "height": res.Height})
		},
	}
}

// listRow is a record as printed by list.
type listRow struct {
	Number       int           `json:"number"`
	ID           string        `json:"id"`
	SourceURL    string        `json:"sourceUrl"`
	Host         string        `json:"host"`
	CapturedAt   time.Time     `json:"capturedAt"`
	CaptureTier  string        `json:"captureTier,omitempty"`
	Bounds       record.Bounds `json:"bounds"`
	Text         *string       `json:"extractedText,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty"`
	LastEditedAt *time.Time    `json:"lastEditedAt,omitempty"`
	ImageBytes   int           `json:"imageBytes"`
	Image        string        `json:"image,omitempty"`
}

// listCmd creates the list command.
func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored screenshots, newest first",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "with-text", Usage: "Only records that have text"},
			&cli.BoolFlag{Name: "images", Usage: "Include images as data URLs"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c, needs{})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			recs, err := e.coord.ListRecords(c.Context)
			if err != nil {
				return outputError(err)
			}
			rows := make([]listRow, 0, len(recs))
			for i, r := range recs {
				if c.Bool("with-text") && !r.HasText() {
					continue
				}
				row := listRow{
					Number:       i + 1,
					ID:           r.ID,
					SourceURL:    r.SourceURL,
					Host:         r.Hostname(),
					CapturedAt:   r.CapturedAt,
					CaptureTier:  r.CaptureTier,
					Bounds:       r.Bounds,
					Text:         r.ExtractedText,
					Confidence:   r.Confidence,
					LastEditedAt: r.LastEditedAt,
					ImageBytes:   len(r.ImageData),
				}
				if c.Bool("images") && len(r.ImageData) > 0 {
					row.Image = imaging.DataURL(r.ImageData)
				}
				rows = append(rows, row)
			}
			return outputJSON(c, rows)
		},
	}
}

// updateCmd creates the update command.
func updateCmd() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Replace a record's text (--text, or piped via stdin)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "New text"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return outputError(errors.NewInvalidRequest("id is required"))
			}
			text := c.String("text")
			if !c.IsSet("text") {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("text must be given with --text or piped via stdin"))
				}
				data, err := io.ReadAll(c.App.Reader)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				text = strings.TrimRight(string(data), "\n")
			}

			e, err := openEnv(c, needs{bridge: true})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			updated, err := e.coord.UpdateRecordText(c.Context, record.TextUpdate{ID: id, Text: text, Origin: record.OriginUser})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"id": id, "updated": updated})
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a record",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return outputError(errors.NewInvalidRequest("id is required"))
			}
			e, err := openEnv(c, needs{bridge: true})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			deleted, err := e.coord.DeleteRecord(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"id": id, "deleted": deleted})
		},
	}
}

// clearCmd creates the clear command.
func clearCmd() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every record",
		Action: func(c *cli.Context) error {
			e, err := openEnv(c, needs{bridge: true})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			if err := e.coord.ClearRecords(c.Context); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"cleared": true})
		},
	}
}

// ocrCmd creates the ocr command.
func ocrCmd() *cli.Command {
	return &cli.Command{
		Name:  "ocr",
		Usage: "Extract text for every record that has none yet",
		Action: func(c *cli.Context) error {
			e, err := openEnv(c, needs{bridge: true})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			ctx, cancel := signalContext(c)
			defer cancel()

			recognizer := ocr.NewTesseract(e.cfg.OCRLanguage, e.cfg.TessdataPrefix)
			p := panel.New(panel.Options{
				Client:      e.coord,
				Recognizer:  recognizer,
				Debounce:    e.cfg.EditDebounce(),
				OCRTimeout:  e.cfg.OCRTimeout(),
				Concurrency: e.cfg.OCRConcurrency,
				Logger:      e.logger,
			})
			defer p.Close()

			e.logger.Info("running ocr", "engine", recognizer.String())
			if err := p.Load(ctx); err != nil {
				return outputError(err)
			}
			finished := make(chan struct{})
			go func() {
				p.WaitOCR()
				close(finished)
			}()
			select {
			case <-finished:
			case <-ctx.Done():
			}
			return outputJSON(c, map[string]any{"items": p.Items(), "status": p.Status()})
		},
	}
}

// exportCmd creates the export command.
func exportCmd() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Save a record's text to <dir>/text-<id>.txt",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: ".", Usage: "Output directory"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return outputError(errors.NewInvalidRequest("id is required"))
			}
			e, err := openEnv(c, needs{})
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			p := panel.New(panel.Options{Client: e.coord, Logger: e.logger})
			defer p.Close()
			if err := p.Load(c.Context); err != nil {
				return outputError(err)
			}
			dir, err := filepath.Abs(c.String("dir"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			path, err := p.SaveText(id, dir)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"id": id, "path": path})
		},
	}
}

// versionCmd creates the version command.
func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			fmt.Fprintf(w, "snaptext %s\n", Version)
			fmt.Fprintf(w, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(w, "  Tesseract:  %s\n", ocr.Version())
			return nil
		},
	}
}

// outputJSON writes v as indented JSON to the app's writer.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, e.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
