// Command ionofit fits volumetric ionosphere models to scattered radar
// measurements. It reads a JSON sample file, fits every time record against
// a Laguerre × spherical-cap-harmonic basis, and writes the coefficients,
// covariances, and session metadata to a SQLite coefficient file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amisr-data/ionofit/internal/config"
	"github.com/amisr-data/ionofit/internal/iono/fit"
	"github.com/amisr-data/ionofit/internal/iono/model"
	"github.com/amisr-data/ionofit/internal/iono/regularize"
	"github.com/amisr-data/ionofit/internal/iono/source"
	"github.com/amisr-data/ionofit/internal/iono/store"
	"github.com/amisr-data/ionofit/internal/version"
)

var (
	configPath  = flag.String("config", "fit.json", "Fit configuration file")
	inputPath   = flag.String("input", "", "JSON sample file to fit")
	outputPath  = flag.String("output", "", "Coefficient file path (overrides the config)")
	startAt     = flag.String("start", "", "Fit only records at or after this RFC3339 time")
	endAt       = flag.String("end", "", "Fit only records at or before this RFC3339 time")
	sessions    = flag.Bool("sessions", false, "List sessions in the coefficient file and exit")
	showVersion = flag.Bool("version", false, "Print build information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	out := cfg.GetOutputPath()
	if *outputPath != "" {
		out = *outputPath
	}

	if *sessions {
		return listSessions(out)
	}
	if *inputPath == "" {
		return fmt.Errorf("missing -input sample file")
	}

	start, err := parseTimeFlag("start", *startAt)
	if err != nil {
		return err
	}
	end, err := parseTimeFlag("end", *endAt)
	if err != nil {
		return err
	}

	kinds, err := cfg.Kinds()
	if err != nil {
		return err
	}
	searcher, err := regularize.NewSearcher(cfg.GetMethod(), regularize.Options{
		Kinds:  kinds,
		Manual: cfg.Manual(),
		In:     os.Stdin,
		Out:    os.Stdout,
	})
	if err != nil {
		return err
	}

	mask := source.Thresholds{
		ErrLim:       cfg.GetErrLim(),
		Chi2Lim:      cfg.GetChi2Lim(),
		GoodFitCodes: cfg.GetGoodFitCodes(),
	}
	src := &source.FileSource{Path: *inputPath, Mask: &mask}

	session := &fit.Session{
		Model:    model.New(cfg.GetMaxK(), cfg.GetMaxL(), cfg.GetCapLimDeg()),
		Kinds:    kinds,
		Method:   cfg.GetMethod(),
		Searcher: searcher,
		ZMax:     cfg.GetZMax(),
		Start:    start,
		End:      end,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("fitting %s for %s with method %s, %d basis functions",
		src.Name(), cfg.GetParam(), cfg.GetMethod(), session.Model.NBasis)
	res, err := session.Run(ctx, src)
	if err != nil {
		return err
	}
	res.Config = fit.ConfigSnapshot{Name: cfg.Name(), Path: cfg.Path(), Text: cfg.Text()}

	st, err := store.Open(out)
	if err != nil {
		return err
	}
	defer st.Close()
	id, err := st.SaveResult(res)
	if err != nil {
		return err
	}
	log.Printf("saved session %s with %d records to %s", id, len(res.Chi2), out)
	return nil
}

func listSessions(path string) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	infos, err := st.Sessions()
	if err != nil {
		return err
	}
	for _, si := range infos {
		fmt.Printf("%s  %-8s %4d records  %s  %s\n",
			si.ID, si.Method, si.Records, si.CreatedAt, si.Source)
	}
	return nil
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -%s time %q: %w", name, value, err)
	}
	return t, nil
}
