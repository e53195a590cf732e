// Package main is the entry point for the qunfold command, which
// recovers truth-level histograms from detector-smeared measurements
// by encoding the unfolding problem as a binary quadratic model.
//
// The flow is: load a named distribution (truth, measurement, response
// matrix) from the artifacts directory, encode and solve it with the
// configured backend, score the result against the stored truth when
// one exists, and archive the run for offline comparison.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/qunfold/qunfold/internal/artifacts"
	"github.com/qunfold/qunfold/internal/config"
	"github.com/qunfold/qunfold/internal/database"
	"github.com/qunfold/qunfold/internal/qubo"
	"github.com/qunfold/qunfold/internal/solver"
	"github.com/qunfold/qunfold/internal/unfold"
	"github.com/qunfold/qunfold/pkg/logger"
)

func main() {
	var (
		distName    = flag.String("dist", "", "distribution to unfold")
		listDists   = flag.Bool("list", false, "list stored distributions and exit")
		listRuns    = flag.Bool("runs", false, "list archived runs for -dist and exit")
		showBest    = flag.Bool("best", false, "show the best archived run for -dist and exit")
		seedExample = flag.Bool("seed-example", false, "write the built-in example distribution and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty})
	logger.SetGlobalLogger(log)

	store, err := artifacts.NewStore(cfg.DistributionsDir(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifacts store")
	}

	switch {
	case *seedExample:
		if err := store.Save(exampleDistribution()); err != nil {
			log.Fatal().Err(err).Msg("Failed to write example distribution")
		}
		log.Info().Str("name", exampleDistribution().Name).Msg("Example distribution written")
		return
	case *listDists:
		names, err := store.List()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list distributions")
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if *distName == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(database.Config{
		Path:    cfg.RunsDBPath(),
		Profile: database.ProfileArchive,
		Name:    "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open run archive")
	}
	defer db.Close()
	defer func() {
		if err := db.WALCheckpoint(""); err != nil {
			log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
	}()

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.HealthCheck(healthCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("path", db.Path()).Msg("Run archive failed health check")
	}
	log.Debug().Str("db", db.Name()).Str("path", db.Path()).Msg("Run archive healthy")

	runs, err := artifacts.NewRunStore(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run archive")
	}

	switch {
	case *listRuns:
		records, err := runs.ListByDistribution(ctx, *distName)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list runs")
		}
		for _, rec := range records {
			printRun(rec)
		}
		return
	case *showBest:
		rec, err := runs.Best(ctx, *distName)
		if err != nil {
			log.Fatal().Err(err).Msg("No scored runs")
		}
		printRun(rec)
		return
	}

	if err := runUnfolding(ctx, cfg, log, store, runs, *distName); err != nil {
		log.Fatal().Err(err).Str("distribution", *distName).Msg("Unfolding failed")
	}
}

// runUnfolding executes one full pipeline pass for a named
// distribution and archives the result.
func runUnfolding(ctx context.Context, cfg *config.Config, log zerolog.Logger, store *artifacts.Store, runs *artifacts.RunStore, name string) error {
	dist, err := store.Load(name)
	if err != nil {
		return err
	}
	op, err := dist.ResponseOperator()
	if err != nil {
		return fmt.Errorf("invalid response matrix in %s: %w", name, err)
	}
	measured, err := dist.MeasuredHistogram()
	if err != nil {
		return fmt.Errorf("invalid measurement in %s: %w", name, err)
	}
	truth, err := dist.TruthHistogram()
	if err != nil {
		return fmt.Errorf("invalid truth reference in %s: %w", name, err)
	}

	sol := buildSolver(cfg, log)
	svc := unfold.NewService(log)

	result, err := svc.Unfold(ctx, unfold.Request{
		Response:   op,
		Measured:   measured,
		TruthEdges: dist.TruthEdges,
		Reg:        qubo.RegSpec{Form: qubo.RegForm(cfg.RegForm), Strength: cfg.RegStrength},
		Encoding:   qubo.EncodingSpec{BitsPerBin: cfg.BitsPerBin},
		Budget: solver.Budget{
			Reads:  cfg.ReadCount,
			Sweeps: cfg.SweepCount,
		},
		Seed: cfg.Seed,
	}, sol)
	if err != nil {
		return err
	}

	rec := &artifacts.RunRecord{
		RunID:        result.Unfolded.Provenance.RunID,
		Distribution: name,
		Solver:       result.Unfolded.Provenance.Solver,
		BitsPerBin:   result.Unfolded.Provenance.BitsPerBin,
		RegForm:      result.Unfolded.Provenance.RegForm,
		RegStrength:  result.Unfolded.Provenance.RegStrength,
		Seed:         result.Unfolded.Provenance.Seed,
		Energy:       result.Unfolded.Provenance.Energy,
		Elapsed:      result.Elapsed,
		Counts:       result.Unfolded.Hist.Counts(),
		Errors:       result.Unfolded.Hist.Errors(),
	}
	for _, cand := range result.Candidates {
		rec.Candidates = append(rec.Candidates, cand.Bits)
	}

	if truth != nil {
		metrics, err := unfold.Score(result.Unfolded, truth)
		if err != nil {
			return err
		}
		rec.ChiSquare = &metrics.ChiSquare
		rec.PValue = &metrics.PValue
		log.Info().
			Float64("chi_square", metrics.ChiSquare).
			Int("ndf", metrics.NDF).
			Float64("p_value", metrics.PValue).
			Msg("Scored against truth reference")
	}

	if cfg.Resamples >= 2 {
		spread, err := unfold.EstimateUncertainty(ctx, op, measured,
			qubo.RegSpec{Form: qubo.RegForm(cfg.RegForm), Strength: cfg.RegStrength},
			qubo.EncodingSpec{BitsPerBin: cfg.BitsPerBin},
			sol,
			solver.Budget{Reads: 1, Sweeps: cfg.SweepCount},
			unfold.BootstrapConfig{
				Resamples:   cfg.Resamples,
				Seed:        uint64(cfg.Seed),
				Parallelism: cfg.Parallelism,
			})
		if err != nil {
			return fmt.Errorf("bootstrap uncertainty estimation: %w", err)
		}
		rec.Errors = spread.Errors()
		log.Info().Int("resamples", cfg.Resamples).Msg("Bootstrap uncertainties estimated")
	}

	if err := runs.Save(ctx, rec); err != nil {
		return err
	}

	for j := 0; j < result.Unfolded.Hist.NBins(); j++ {
		fmt.Printf("bin %d: %.3f +- %.3f\n", j, rec.Counts[j], rec.Errors[j])
	}
	fmt.Printf("run %s solver=%s energy=%.6g elapsed=%s\n",
		rec.RunID, rec.Solver, rec.Energy, rec.Elapsed)
	return nil
}

// buildSolver assembles the configured backend. The remote annealer is
// always wrapped with a local simulated annealing fallback so an
// unreachable service degrades instead of failing the run.
func buildSolver(cfg *config.Config, log zerolog.Logger) solver.Solver {
	sa := solver.NewSimulatedAnnealer(solver.SAConfig{
		Seed:   cfg.Seed,
		Chains: cfg.ChainCount,
	}, log)

	switch cfg.Solver {
	case "exact":
		return solver.NewExactSolver(cfg.ExactMaxVars, log)
	case "annealer":
		client := solver.NewAnnealerClient(cfg.AnnealerURL, cfg.AnnealerToken, cfg.AnnealerTimeout, log)
		return solver.NewFallbackSolver(client, sa, log)
	default:
		return sa
	}
}

func printRun(rec *artifacts.RunRecord) {
	score := "unscored"
	if rec.ChiSquare != nil {
		score = fmt.Sprintf("chi2=%.4g p=%.4g", *rec.ChiSquare, *rec.PValue)
	}
	fmt.Printf("%s  %s  solver=%s bits=%d reg=%s/%.3g energy=%.6g %s\n",
		rec.RunID, rec.CreatedAt.Format(time.RFC3339), rec.Solver,
		rec.BitsPerBin, rec.RegForm, rec.RegStrength, rec.Energy, score)
}

// exampleDistribution is the two-bin smearing benchmark: a flat truth
// of 100 counts per bin pushed through 10% bin migration.
func exampleDistribution() *artifacts.Distribution {
	return &artifacts.Distribution{
		Name:          "flat_2bin",
		TruthEdges:    []float64{0, 1, 2},
		Truth:         []float64{100, 100},
		MeasuredEdges: []float64{0, 1, 2},
		Measured:      []float64{110, 90},
		Response: [][]float64{
			{0.9, 0.1},
			{0.1, 0.9},
		},
	}
}
