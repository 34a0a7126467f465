// Command pinpoint resolves, enriches or annotates a single coordinate and
// prints the result as JSON on stdout. It wires the same services as the
// HTTP server, without rate limiting or idempotency.
//
// Usage:
//
//	pinpoint resolve  -lat 48.8584 -lng 2.2945 [-hint "Eiffel Tower"] [-radius 150]
//	pinpoint enrich   -lat 48.8584 -lng 2.2945 [-hint "Eiffel Tower"]
//	pinpoint annotate -lat 48.8584 -lng 2.2945 [-precision 4]
//
// Logs go to stderr so stdout stays valid JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/scrypster/pinpoint/internal/app"
	"github.com/scrypster/pinpoint/internal/config"
	"github.com/scrypster/pinpoint/internal/engine"
	"github.com/scrypster/pinpoint/internal/gateway"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/resolver"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Subcommands.
const (
	cmdResolve  = "resolve"
	cmdEnrich   = "enrich"
	cmdAnnotate = "annotate"
)

// command is one parsed invocation.
type command struct {
	Name      string
	Point     types.Coordinate
	Hint      string
	Radius    float64
	Precision int
}

var errUsage = errors.New("usage: pinpoint <resolve|enrich|annotate> -lat <lat> -lng <lng> [flags]")

func main() {
	cmd, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinpoint: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitTo(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "pinpoint: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinpoint: %v\n", err)
		os.Exit(1)
	}

	runErr := run(ctx, a, cmd, os.Stdout)
	if err := a.Close(); err != nil {
		logger.GetLogger("main").Warnw("error during shutdown", "error", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "pinpoint: %v\n", runErr)
		logger.Sync()
		os.Exit(1)
	}
}

// parseArgs parses the subcommand and its flags. Flag errors and usage are
// written to stderr.
func parseArgs(args []string, stderr io.Writer) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}
	cmd := command{Name: args[0]}
	switch cmd.Name {
	case cmdResolve, cmdEnrich, cmdAnnotate:
	default:
		return command{}, fmt.Errorf("unknown command %q\n%w", cmd.Name, errUsage)
	}

	fs := flag.NewFlagSet("pinpoint "+cmd.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	lat := fs.String("lat", "", "Latitude in decimal degrees (required)")
	lng := fs.String("lng", "", "Longitude in decimal degrees (required)")
	if cmd.Name != cmdAnnotate {
		fs.StringVar(&cmd.Hint, "hint", "", "Place name the user expects at the coordinate")
	}
	if cmd.Name == cmdResolve {
		fs.Float64Var(&cmd.Radius, "radius", 0, "Nearby search radius in meters (default from config)")
	}
	if cmd.Name == cmdAnnotate {
		fs.IntVar(&cmd.Precision, "precision", types.DefaultKeyPrecision, "Cache key precision, 2 to 6 decimal places")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return command{}, err
	}
	if fs.NArg() > 0 {
		return command{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if *lat == "" || *lng == "" {
		return command{}, fmt.Errorf("%w: -lat and -lng are required", types.ErrInvalidCoordinate)
	}
	var err error
	if cmd.Point.Lat, err = parseDegrees(*lat); err != nil {
		return command{}, err
	}
	if cmd.Point.Lng, err = parseDegrees(*lng); err != nil {
		return command{}, err
	}
	if err := cmd.Point.Validate(); err != nil {
		return command{}, err
	}
	if cmd.Name == cmdAnnotate && (cmd.Precision < 2 || cmd.Precision > 6) {
		return command{}, fmt.Errorf("precision must be between 2 and 6, got %d", cmd.Precision)
	}
	return cmd, nil
}

func parseDegrees(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", types.ErrInvalidCoordinate, s)
	}
	return v, nil
}

// annotation is the annotate output; gateway.Result hides its source from
// JSON because the HTTP layer reports it under meta.
type annotation struct {
	Source string `json:"source"`
	Cached bool   `json:"cached"`
	*gateway.Result
}

// run executes cmd and writes indented JSON to w.
func run(ctx context.Context, a *app.App, cmd command, w io.Writer) error {
	var out interface{}
	switch cmd.Name {
	case cmdResolve:
		id, err := a.Resolver.Resolve(ctx, resolver.Request{Coordinate: cmd.Point, Hint: cmd.Hint, Radius: cmd.Radius})
		if err != nil {
			return err
		}
		out = id
	case cmdEnrich:
		res, err := a.Engine.Enrich(ctx, engine.Request{Coordinate: cmd.Point, Hint: cmd.Hint})
		if err != nil {
			return err
		}
		out = res.Pin
	case cmdAnnotate:
		res, err := a.Gateway.Annotate(ctx, gateway.Request{Coordinate: cmd.Point, Precision: cmd.Precision})
		if err != nil {
			return err
		}
		out = annotation{Source: res.Source, Cached: res.Cached, Result: res}
	default:
		return errUsage
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
