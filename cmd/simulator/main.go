package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fresh-hub/internal/utils"
	"fresh-hub/simulator"

	"github.com/spf13/viper"
)

func loadSimConfig() simulator.SimConfig {
	def := simulator.DefaultSimConfig()

	v := viper.New()
	v.SetEnvPrefix("sim")
	v.AutomaticEnv()
	v.SetDefault("users", def.NumUsers)
	v.SetDefault("posts_per_user", def.PostsPerUser)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("toggles_per_worker", def.TogglesPerWorker)
	v.SetDefault("zipf_s", def.ZipfS)
	v.SetDefault("engine_url", def.EngineURL)
	v.SetDefault("request_timeout", def.RequestTimeout)

	return simulator.SimConfig{
		NumUsers:         v.GetInt("users"),
		PostsPerUser:     v.GetInt("posts_per_user"),
		Workers:          v.GetInt("workers"),
		TogglesPerWorker: v.GetInt("toggles_per_worker"),
		ZipfS:            v.GetFloat64("zipf_s"),
		EngineURL:        v.GetString("engine_url"),
		RequestTimeout:   v.GetDuration("request_timeout"),
	}
}

func main() {
	logger := utils.NewLogger(os.Stderr, os.Getenv("LOG_FORMAT"), false)
	config := loadSimConfig()

	logger.Info("Starting simulation",
		"engineUrl", config.EngineURL,
		"users", config.NumUsers,
		"postsPerUser", config.PostsPerUser,
		"workers", config.Workers,
		"togglesPerWorker", config.TogglesPerWorker,
		"zipfS", config.ZipfS,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := simulator.NewSimulator(config, logger).Run(ctx)
	if err != nil {
		logger.Error("Simulation failed", "error", err)
		os.Exit(1)
	}

	stats := report.Stats
	logger.Info("Simulation completed",
		"duration", stats.Duration,
		"requests", stats.TotalRequests,
		"failed", stats.FailedRequests,
		"avgLatency", stats.AverageLatency,
		"likes", stats.Likes,
		"unlikes", stats.Unlikes,
	)
	for _, violation := range report.Violations {
		logger.Error("Consistency violation", "detail", violation)
	}
	if len(report.Violations) > 0 {
		os.Exit(1)
	}
}
