// Binary backtest replays the configured strategy over historical price data
// and reports risk-adjusted performance.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"quantbt-go/internal/backtest"
	"quantbt-go/internal/config"
	"quantbt-go/internal/marketdata"
	"quantbt-go/internal/metrics"
	"quantbt-go/internal/strategy"
	"quantbt-go/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	flag.Parse()

	log := util.NewLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	var provider backtest.Provider
	switch cfg.Data.Provider {
	case "", "csv":
		provider = marketdata.NewCSVDir(cfg.Data.Dir)
	case "parquet":
		provider = marketdata.NewParquetDir(cfg.Data.Dir)
	default:
		log.Fatal().Str("provider", cfg.Data.Provider).Msg("unknown data provider")
	}

	start, err := parseDate(cfg.Backtest.Start)
	if err != nil {
		log.Fatal().Err(err).Msg("parse start date")
	}
	end, err := parseDate(cfg.Backtest.End)
	if err != nil {
		log.Fatal().Err(err).Msg("parse end date")
	}

	build := func() (strategy.Strategy, error) {
		strat, err := strategy.Build(cfg.Strategy.Kind, cfg.Strategy.Params)
		if err != nil {
			return nil, err
		}
		if loggable, ok := strat.(interface{ SetLogger(zerolog.Logger) }); ok {
			loggable.SetLogger(log)
		}
		return strat, nil
	}

	log.Info().
		Str("strategy", cfg.Strategy.Kind).
		Strs("symbols", cfg.Backtest.Symbols).
		Float64("initial_capital", cfg.Backtest.InitialCapital).
		Msg("backtest batch started")

	batch, err := backtest.RunBatch(provider, cfg.Backtest.Symbols, start, end, cfg.Backtest.InitialCapital, build, log)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest batch")
	}

	if cfg.Backtest.ResultsPath != "" {
		recorder, err := backtest.NewJSONLRecorder(cfg.Backtest.ResultsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open results recorder")
		}
		defer recorder.Close()
		for _, result := range batch.PerSymbol {
			if err := recorder.Record(result); err != nil {
				log.Error().Err(err).Str("symbol", result.Symbol).Msg("record result")
			}
		}
		if err := recorder.Record(batch.Combined); err != nil {
			log.Error().Err(err).Msg("record combined result")
		}
	}

	out, err := json.MarshalIndent(batch.Combined.Metrics, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encode metrics")
	}
	fmt.Println(string(out))
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
