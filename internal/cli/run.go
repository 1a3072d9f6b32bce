package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flightbus/simtel/internal/simfeed"
	"github.com/flightbus/simtel/pkg/domain"
	"github.com/flightbus/simtel/pkg/processor"
)

var (
	runRateHz   float64
	runDuration time.Duration
	runRecord   string
	runSeed     int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline against a synthetic telemetry feed",
	Long: `Starts the pipeline and drives it with a synthetic flight profile
(taxi, takeoff, climb, cruise) until interrupted or the duration elapses.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().Float64Var(&runRateHz, "rate", 30, "sample rate in Hz")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "stop after this long (0 = until interrupted)")
	runCmd.Flags().StringVar(&runRecord, "record", "", "record the session to this file")
	runCmd.Flags().Int64Var(&runSeed, "seed", time.Now().UnixNano(), "synthetic feed random seed")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	p := processor.New(logger)
	if err := p.Initialize(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if runDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	if err := p.Start(ctx); err != nil {
		return err
	}

	if err := p.SubscribeEvents("cli", func(ev domain.Event) {
		logger.Info("flight event",
			zap.String("type", string(ev.Type)),
			zap.String("severity", string(ev.Severity)),
			zap.String("description", ev.Description))
	}); err != nil {
		return err
	}
	if err := p.SubscribeAnomalies("cli", func(a domain.Anomaly) {
		logger.Warn("anomaly",
			zap.String("parameter", a.Parameter),
			zap.String("model", a.Model),
			zap.Float64("confidence", a.Confidence))
	}); err != nil {
		return err
	}

	recordPath := runRecord
	if recordPath == "" && cfg.Recording.Directory != "" {
		recordPath = filepath.Join(cfg.Recording.Directory, p.SessionID()+".rec")
	}
	if recordPath != "" {
		if err := p.StartRecording(recordPath); err != nil {
			logger.Error("cannot start recording", zap.Error(err))
		} else {
			logger.Info("recording session", zap.String("path", recordPath))
		}
	}

	gen := simfeed.New(p.SessionID(), runRateHz, runSeed)
	ticker := time.NewTicker(gen.Period())
	defer ticker.Stop()

	logger.Info("feeding synthetic telemetry",
		zap.Float64("rate_hz", runRateHz),
		zap.String("session_id", p.SessionID()))

feed:
	for {
		select {
		case <-ctx.Done():
			break feed
		case <-ticker.C:
			s := gen.Next()
			p.ProcessSample(&s)
		}
	}

	if err := p.Stop(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	stats := p.GetStatistics()
	logger.Info("session summary",
		zap.Int64("received", stats.SamplesReceived),
		zap.Int64("processed", stats.SamplesProcessed),
		zap.Int64("dropped", stats.SamplesDropped),
		zap.Int64("events", stats.EventsDetected),
		zap.Int64("anomalies", stats.AnomaliesDetected),
		zap.Duration("uptime", stats.Uptime))
	return nil
}
