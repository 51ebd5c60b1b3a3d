package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/auriol/strikeplan/internal/api"
	"github.com/auriol/strikeplan/internal/combat"
	"github.com/auriol/strikeplan/internal/solver"
)

// Configuration is resolved flag > config file > environment > default.
// Every key is also reachable as STRIKEPLAN_<KEY> (dots become underscores),
// so ga.population can be set with STRIKEPLAN_GA_POPULATION.
func main() {
	pflag.String("config", "", "Path to an optional YAML config file")
	pflag.String("config", "", "Path to an optional YAML config file")
	pflag.String("listen", ":8080", "Listen address")
	pflag.String("db", "strikeplan.db", "Path to the combat parameter database")
	pflag.String("solver", api.SolverGenetic, "Solver used when a request names none")
	pflag.Bool("cors", true, "Serve allow-all CORS headers")
	pflag.Parse()

	v := viper.New()
	v.SetEnvPrefix("STRIKEPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "binding flags: %v\n", err)
		os.Exit(1)
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "reading config: %v\n", err)
			os.Exit(1)
		}
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Encoding = "console"
	log, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	src, err := combat.OpenSQLSource(v.GetString("db"), log)
	if err != nil {
		log.Fatal("failed to open parameter database", zap.Error(err))
	}
	defer src.Close()

	cache := combat.NewCache(src, log)
	cache.EnsureLoaded(context.Background())
	exchange, defense := cache.Sizes()
	log.Info("combat parameters ready",
		zap.Int("exchange_ratios", exchange),
		zap.Int("defense_rates", defense))

	srv := api.NewWithConfig(api.Config{
		Cache:         cache,
		Logger:        log,
		DefaultSolver: v.GetString("solver"),
		DisableCORS:   !v.GetBool("cors"),
		Tuning: solver.Tuning{
			PopulationSize: v.GetInt("ga.population"),
			Generations:    v.GetInt("ga.generations"),
			MutationRate:   v.GetFloat64("ga.mutation_rate"),
			EliteSize:      v.GetInt("ga.elite"),
		},
	})

	addr := v.GetString("listen")
	log.Info("listening", zap.String("addr", addr))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
