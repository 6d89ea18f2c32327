package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"math"
	"math/big"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zintix-labs/monocal/artifact"
	"github.com/zintix-labs/monocal/calib"
	"github.com/zintix-labs/monocal/dataset"
	"github.com/zintix-labs/monocal/report"
	"github.com/zintix-labs/monocal/sdk/core"
	"github.com/zintix-labs/monocal/shrink"
	"github.com/zintix-labs/monocal/spec"
	"github.com/zintix-labs/monocal/spline"
)

var cfg *config = new(config)

type config struct {
	setting  string
	cells    string
	entities string
	out      string
	zstdOut  bool
	pseudoK  float64
	seed     int64
}

func bindVar() {
	flag.StringVar(&cfg.setting, "setting", "", "calibration setting yaml")
	flag.StringVar(&cfg.cells, "cells", "", "observation cells json")
	flag.StringVar(&cfg.entities, "entities", "", "optional per-entity counts json for pooled intercepts")
	flag.StringVar(&cfg.out, "out", "", "artifact output path ('' writes to stdout)")
	flag.BoolVar(&cfg.zstdOut, "zstd", false, "compress the artifact with zstd")
	flag.Float64Var(&cfg.pseudoK, "k", 0, "pooling pseudo-count for entities (0 = default)")
	flag.Int64Var(&cfg.seed, "seed", -1, "int64 seed for random number generator")

	flag.Parse()

	// given seed illeagel -> default seed
	if cfg.seed < 1 {
		seed, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err != nil {
			log.Fatal(err)
		}
		cfg.seed = seed.Int64()
	}
}

func executeCalibration() {
	cfg.valid()

	set := loadSetting()
	cells := loadCells()

	p := message.NewPrinter(language.English)
	green := "\033[1;32m"
	reset := "\033[0m"
	p.Printf("%s[CALIB:%s x %s] [CELLS:%d] [SEED:%d]%s\n",
		green, set.FactorA.Name, set.FactorB.Name, len(cells), cfg.seed, reset)

	c := core.NewWithSeed(cfg.seed)
	res, err := calib.Calibrate(cells, set, c)
	if err != nil {
		log.Fatal(err)
	}
	if !res.Info.Converged {
		p.Printf("warning: optimizer did not fully converge (iterations=%d)\n", res.Info.NIterations)
	}

	fmt.Print(report.Calibration(set, res))

	rec := artifact.New(set, res)
	writeArtifact(rec)

	if cfg.entities != "" {
		runEntities(rec, c)
	}
}

func (cfg *config) valid() {
	if cfg.setting == "" {
		log.Fatal("value err : -setting is required")
	}
	if cfg.cells == "" {
		log.Fatal("value err : -cells is required")
	}
	if cfg.pseudoK < 0 {
		log.Fatal("value err : -k must be >= 0")
	}
}

func loadSetting() *spec.CalibSetting {
	data, err := os.ReadFile(cfg.setting)
	if err != nil {
		log.Fatal(err)
	}
	set, err := spec.GetCalibSettingByYAML(data)
	if err != nil {
		log.Fatal(err)
	}
	return set
}

func loadCells() []calib.Cell {
	dir, name := filepath.Split(cfg.cells)
	if dir == "" {
		dir = "."
	}
	cells, err := dataset.LoadCells(os.DirFS(dir), name)
	if err != nil {
		log.Fatal(err)
	}
	return cells
}

func writeArtifact(rec *artifact.Record) {
	if cfg.out == "" {
		if err := artifact.WriteJSON(os.Stdout, rec); err != nil {
			log.Fatal(err)
		}
		return
	}
	f, err := os.Create(cfg.out)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if cfg.zstdOut {
		err = artifact.WriteZstd(f, rec)
	} else {
		err = artifact.WriteJSON(f, rec)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// runEntities pools per-entity counts and prints each entity's pooled
// rate at its factor anchors (offset zero by construction).
func runEntities(rec *artifact.Record, c *core.Core) {
	dir, name := filepath.Split(cfg.entities)
	if dir == "" {
		dir = "."
	}
	ents, err := dataset.LoadEntities(os.DirFS(dir), name)
	if err != nil {
		log.Fatal(err)
	}
	pooled, tiers, err := shrink.Pool(ents, cfg.pseudoK)
	if err != nil {
		log.Fatal(err)
	}

	p := message.NewPrinter(language.English)
	for _, t := range tiers {
		p.Printf("tier %s: n=%d mean=%.3f std=%.3f\n", t.Tier, t.Count, t.Mean, t.Std)
	}

	// Entities are reported at the factor anchors, where both curves
	// evaluate to (numerically) zero and the offset reduces to the
	// global intercept.
	offset := rec.GlobalIntercept +
		spline.EvaluateAt(rec.FactorA.Anchor, rec.CurveA) +
		spline.EvaluateAt(rec.FactorB.Anchor, rec.CurveB)

	lines := make([]string, 0, len(pooled))
	bar := pb.StartNew(len(pooled))
	for _, e := range pooled {
		prob := shrink.Predict(e, offset)
		draw := shrink.PredictDraw(e, offset, c)
		lines = append(lines, p.Sprintf("%-24s tier=%-4s w=%.2f p=%.4f draw=%.4f", e.Name, e.Tier, e.PoolWeight, prob, draw))
		bar.Increment()
	}
	bar.Finish()
	for _, ln := range lines {
		fmt.Println(ln)
	}
}
