// Package main provides CMA-ES optimization for finding chamber setups
// (plant count, light duty cycle, starting CO2) that keep a snail colony
// alive with balanced gases.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/ecochamber/config"
)

type options struct {
	configPath string
	hours      int
	snails     int
	mortality  bool
	seeds      int
	maxEvals   int
	population int
	outputDir  string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	flag.IntVar(&o.hours, "hours", 72, "Chamber hours per run")
	flag.IntVar(&o.snails, "snails", 10, "Snails in every evaluated chamber")
	flag.BoolVar(&o.mortality, "mortality", true, "Enable stochastic hypoxia mortality")
	flag.IntVar(&o.seeds, "seeds", 3, "Number of seeds per evaluation")
	flag.IntVar(&o.maxEvals, "max-evals", 200, "Maximum number of evaluations")
	flag.IntVar(&o.population, "population", 0, "CMA-ES population size (0 = auto)")
	flag.StringVar(&o.outputDir, "output", "", "Output directory for results")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()
	if opts.outputDir == "" {
		log.Fatal("--output is required")
	}
	if opts.hours < 1 {
		log.Fatal("--hours must be at least 1")
	}
	if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := config.Init(opts.configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()
	cfg.Engine.Mortality = opts.mortality

	if err := optimizeChamber(opts, cfg); err != nil {
		log.Fatal(err)
	}
}

// evalLog appends one CSV row per evaluation, flushed as it goes so a long
// search can be followed while it runs.
type evalLog struct {
	f *os.File
	w *csv.Writer
}

func newEvalLog(path string, params *ParamVector) (*evalLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating eval log: %w", err)
	}
	header := []string{"eval", "fitness", "quality"}
	for _, s := range params.Specs {
		header = append(header, s.Name)
	}
	l := &evalLog{f: f, w: csv.NewWriter(f)}
	return l, l.write(header)
}

func (l *evalLog) append(eval int, fitness, quality float64, values []float64) error {
	row := []string{
		strconv.Itoa(eval),
		strconv.FormatFloat(fitness, 'f', 6, 64),
		strconv.FormatFloat(quality, 'f', 6, 64),
	}
	for _, v := range values {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	return l.write(row)
}

func (l *evalLog) write(row []string) error {
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *evalLog) Close() error {
	l.w.Flush()
	return l.f.Close()
}

func optimizeChamber(opts options, cfg *config.Config) error {
	params := NewParamVector()

	seeds := make([]uint64, opts.seeds)
	for i := range seeds {
		seeds[i] = uint64(i*1000 + 42)
	}
	evaluator, err := NewFitnessEvaluator(params, opts.hours, opts.snails, seeds, cfg)
	if err != nil {
		return fmt.Errorf("creating evaluator: %w", err)
	}

	evals, err := newEvalLog(filepath.Join(opts.outputDir, "optimize_log.csv"), params)
	if err != nil {
		return err
	}
	defer evals.Close()

	popSize := opts.population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(params.Dim())/2.0)
	}

	var (
		count       int
		bestFitness = 1e9
		bestParams  []float64
		start       = time.Now()
	)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			quality := evaluator.LastQuality()
			count++

			clamped := params.Clamp(raw)
			if fitness < bestFitness {
				bestFitness, bestParams = fitness, clamped
			}
			if err := evals.append(count, fitness, quality, clamped); err != nil {
				log.Printf("eval log: %v", err)
			}

			// fitness = -(survival × (1 + quality))
			survival := -fitness / (1.0 + quality)
			sc := params.Scenario(clamped, opts.snails)
			fmt.Printf("eval %d/%d plants=%d duty=%.2f co2=%.0f survived=%.0f%% quality=%.2f best=%.3f (%s)\n",
				count, opts.maxEvals, sc.Plants, sc.LightDuty, sc.InitialCO2,
				survival*100, quality, bestFitness, time.Since(start).Round(time.Second))
			return fitness
		},
	}

	fmt.Printf("CMA-ES over %d parameters, population=%d, max_evals=%d, seeds=%d, hours=%d, snails=%d\n",
		params.Dim(), popSize, opts.maxEvals, opts.seeds, opts.hours, opts.snails)

	result, err := optimize.Minimize(problem, params.Normalize(params.DefaultVector()),
		&optimize.Settings{FuncEvaluations: opts.maxEvals},
		&optimize.CmaEsChol{InitStepSize: 0.3, Population: popSize},
	)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if bestParams == nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	best := params.Scenario(bestParams, opts.snails)
	fmt.Printf("\nbest after %d evaluations in %s: fitness %.3f, %+v\n",
		count, time.Since(start).Round(time.Second), bestFitness, best)
	return writeResults(opts, cfg, best, evaluator)
}

// writeResults saves the best setup as a runnable Lua experiment, the
// evaluated config and the hourly trace of the best run.
func writeResults(opts options, cfg *config.Config, best Scenario, evaluator *FitnessEvaluator) error {
	scriptPath := filepath.Join(opts.outputDir, "best_scenario.lua")
	if err := os.WriteFile(scriptPath, []byte(best.Lua(opts.hours)), 0644); err != nil {
		return fmt.Errorf("writing best scenario: %w", err)
	}
	fmt.Printf("scenario script: %s\n", scriptPath)

	if err := cfg.WriteYAML(filepath.Join(opts.outputDir, "best_config.yaml")); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	windows := evaluator.BestWindows()
	if len(windows) == 0 {
		return nil
	}
	f, err := os.Create(filepath.Join(opts.outputDir, "best_trace.csv"))
	if err != nil {
		return fmt.Errorf("creating best trace: %w", err)
	}
	defer f.Close()
	if err := gocsv.Marshal(windows, f); err != nil {
		return fmt.Errorf("writing best trace: %w", err)
	}
	return nil
}
