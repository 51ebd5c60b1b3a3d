package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auriol/strikeplan/internal/api"
	"github.com/auriol/strikeplan/internal/combat"
	"github.com/auriol/strikeplan/internal/loader"
	"github.com/auriol/strikeplan/internal/models"
	"github.com/auriol/strikeplan/internal/solver"
	"github.com/auriol/strikeplan/internal/solver/exact"
	"github.com/auriol/strikeplan/internal/solver/genetic"
)

var (
	scenarioPath string
	objectiveArg string
	solverArg    string
	solutionsArg int
	timeLimitArg float64
	seedArg      int64
	dbPath       string
	verbose      bool
	jsonOut      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "strikeplan",
		Short: "Strike Plan Replacement Optimizer",
		Long: `Searches replacement strategies for a strike plan so the plan
stays within its aircraft and ammunition caps at the best objective value.`,
		Run: runOptimize,
	}

	rootCmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "Path to the scenario JSON file")
	rootCmd.Flags().StringVarP(&objectiveArg, "objective", "o", "", "Objective: price, loss, or usage (default from scenario)")
	rootCmd.Flags().StringVar(&solverArg, "solver", "", "Solver: genetic or exact (default from scenario)")
	rootCmd.Flags().IntVarP(&solutionsArg, "solutions", "n", 0, "How many solutions to keep (default from scenario)")
	rootCmd.Flags().Float64Var(&timeLimitArg, "time-limit", 0, "Search time limit in seconds (default from scenario)")
	rootCmd.Flags().Int64Var(&seedArg, "seed", 0, "Random seed for the genetic search (0 seeds from the clock)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Path to the combat parameter database (defaults used when empty)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the result as JSON")
	_ = rootCmd.MarkFlagRequired("scenario")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOptimize(cmd *cobra.Command, args []string) {
	titleColor := color.New(color.FgCyan, color.Bold)
	successColor := color.New(color.FgGreen, color.Bold)
	infoColor := color.New(color.FgYellow)

	log := zap.NewNop()
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		built, err := cfg.Build()
		if err != nil {
			color.Red("Error building logger: %v", err)
			os.Exit(1)
		}
		defer built.Sync()
		log = built
	}

	if !jsonOut {
		titleColor.Println("\n╭───────────────────────────╮")
		titleColor.Println("│  Strike Plan Optimizer    │")
		titleColor.Println("╰───────────────────────────╯")
		fmt.Println()
	}

	scenario, err := loader.Load(scenarioPath)
	if err != nil {
		color.Red("Error loading scenario: %v", err)
		os.Exit(1)
	}

	cache := combat.NewCache(nil, log)
	if dbPath != "" {
		src, err := combat.OpenSQLSource(dbPath, log)
		if err != nil {
			color.Red("Error opening parameter database: %v", err)
			os.Exit(1)
		}
		defer src.Close()
		cache = combat.NewCache(src, log)
	}

	plan, caps, err := scenario.Build(combat.NewSimulator(cache))
	if err != nil {
		color.Red("Invalid scenario: %v", err)
		os.Exit(1)
	}

	objective, err := pickObjective(scenario)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
	opt, solverName, err := pickSolver(scenario, log)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}

	opts := solver.Options{
		Objective:     objective,
		SolutionCount: solutionsArg,
		TimeLimit:     scenario.Deadline(),
		Seed:          seedArg,
	}
	if opts.SolutionCount == 0 {
		opts.SolutionCount = scenario.SolutionCount
	}
	if timeLimitArg > 0 {
		opts.TimeLimit = time.Duration(timeLimitArg * float64(time.Second))
	}

	if !jsonOut {
		infoColor.Printf("📦 Loaded %d actions, %d strategies (%d replaceable)\n",
			len(plan.Actions), len(plan.Strategies), len(plan.ReplaceableIDs()))
		infoColor.Printf("🔄 Minimizing %s with the %s solver...\n\n", objective, solverName)
	}

	res, err := opt.Optimize(context.Background(), plan, caps, opts)
	if err != nil {
		color.Red("Optimization failed: %v", err)
		os.Exit(1)
	}

	if jsonOut {
		out, err := json.MarshalIndent(api.Report(res), "", "  ")
		if err != nil {
			color.Red("Error encoding result: %v", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	printBaseline(res.Baseline)

	if len(res.Solutions) == 0 {
		color.Yellow("\n⚠ No assignment satisfies every cap; the plan needs more than strategy swaps.")
		return
	}

	successColor.Printf("\n✓ Found %d solution(s)\n\n", len(res.Solutions))
	printComparison(res)
	printAssignments(res)
	printUsage(plan, caps, res.Solutions[0])

	best := res.Solutions[0]
	successColor.Printf("\n✓ Best %s: %s (baseline %s)\n", objective,
		formatMetric(best.Value(objective)),
		formatMetric(solver.ObjectiveValue(objective, res.Baseline.Price, res.Baseline.Loss, res.Baseline.Usage)))
}

func pickObjective(scenario *loader.Scenario) (models.Objective, error) {
	if objectiveArg != "" {
		return models.ParseObjective(objectiveArg)
	}
	return scenario.Objective()
}

func pickSolver(scenario *loader.Scenario, log *zap.Logger) (solver.Optimizer, string, error) {
	name := solverArg
	if name == "" {
		name = scenario.Solver
	}
	switch name {
	case "", api.SolverGenetic:
		return genetic.New(log), api.SolverGenetic, nil
	case api.SolverExact:
		return exact.New(log), api.SolverExact, nil
	}
	return nil, "", models.Inputf("solver", "unknown solver %q", name)
}

func printBaseline(b solver.Baseline) {
	infoColor := color.New(color.FgYellow)
	errorColor := color.New(color.FgRed)

	infoColor.Println("📊 Baseline plan:")
	fmt.Printf("   Price: %s   Losses: %d   Usage: %d\n", formatMetric(b.Price), b.Loss, b.Usage)
	if len(b.Exceeded) == 0 {
		fmt.Println("   All caps satisfied")
		return
	}
	errorColor.Println("   Exceeded caps:")
	for _, violation := range b.Exceeded {
		errorColor.Printf("   ❌ %s\n", violation)
	}
}

func printComparison(res solver.Result) {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Plan", "Price", "Losses", "Usage", "Changes"}),
	)
	_ = table.Append([]string{
		"baseline",
		formatMetric(res.Baseline.Price),
		strconv.Itoa(res.Baseline.Loss),
		strconv.Itoa(res.Baseline.Usage),
		"-",
	})
	for i, sol := range res.Solutions {
		_ = table.Append([]string{
			fmt.Sprintf("solution %d", i+1),
			formatMetric(sol.Price),
			strconv.Itoa(sol.Loss),
			strconv.Itoa(sol.Usage),
			fmt.Sprintf("%d swap(s)", len(sol.Assignment)),
		})
	}
	_ = table.Render()
}

func printAssignments(res solver.Result) {
	fmt.Println()
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Solution", "Strategy", "Replaced By"}),
	)
	for i, sol := range res.Solutions {
		label := strconv.Itoa(i + 1)
		if len(sol.Assignment) == 0 {
			_ = table.Append([]string{label, "-", "(unchanged)"})
			continue
		}
		ids := make([]string, 0, len(sol.Assignment))
		for id := range sol.Assignment {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			_ = table.Append([]string{label, id, sol.Assignment[id].ID})
		}
	}
	_ = table.Render()
}

func printUsage(plan *models.Plan, caps models.Constraints, best solver.Solution) {
	peakAircraft, totalAmmo := resourceTotals(plan, best.Assignment)

	fmt.Println()
	color.New(color.FgYellow).Println("🧮 Resource usage of the best solution (aircraft peak per tick, ammunition total):")
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Resource", "Kind", "Used", "Cap"}),
	)
	appendUsage(table, "aircraft", peakAircraft, caps.Aircraft)
	appendUsage(table, "ammunition", totalAmmo, caps.Ammunition)
	_ = table.Render()
}

func appendUsage(table *tablewriter.Table, kind string, used, caps map[models.ResourceKey]int) {
	merged := make(map[models.ResourceKey]int, len(used)+len(caps))
	for key, count := range used {
		merged[key] = count
	}
	for key := range caps {
		if _, ok := merged[key]; !ok {
			merged[key] = 0
		}
	}
	for _, key := range models.SortKeys(merged) {
		capStr := "-"
		if limit, ok := caps[key]; ok {
			capStr = strconv.Itoa(limit)
		}
		_ = table.Append([]string{key.String(), kind, strconv.Itoa(merged[key]), capStr})
	}
}

// resourceTotals aggregates what the best plan actually commits: the peak
// concurrent aircraft demand per pool and the cumulative ammunition rounds.
func resourceTotals(plan *models.Plan, assignment models.Assignment) (peakAircraft, totalAmmo map[models.ResourceKey]int) {
	usageAt := make(map[int]map[models.ResourceKey]int)
	totalAmmo = make(map[models.ResourceKey]int)
	for _, action := range plan.Actions {
		for _, st := range action.Strategies {
			st = plan.Resolve(st, assignment)
			for key, req := range st.Ammunition {
				if req.Count > 0 {
					totalAmmo[key] += req.Count
				}
			}
			if st.Window == nil {
				continue
			}
			for key, req := range st.Aircraft {
				if req.Count <= 0 {
					continue
				}
				for t := st.Window.Start; t < st.Window.End; t++ {
					at := usageAt[t]
					if at == nil {
						at = make(map[models.ResourceKey]int)
						usageAt[t] = at
					}
					at[key] += req.Count
				}
			}
		}
	}
	peakAircraft = make(map[models.ResourceKey]int)
	for _, at := range usageAt {
		for key, count := range at {
			if count > peakAircraft[key] {
				peakAircraft[key] = count
			}
		}
	}
	return peakAircraft, totalAmmo
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
