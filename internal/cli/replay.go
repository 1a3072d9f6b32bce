package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flightbus/simtel/pkg/domain"
	"github.com/flightbus/simtel/pkg/processor"
	"github.com/flightbus/simtel/pkg/recording"
)

var replaySpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Replay a recorded session through the pipeline",
	Long: `Reads a recording file and re-drives its samples through the pipeline
at original timestamp pacing, optionally accelerated.`,
	Args: cobra.ExactArgs(1),
	RunE: replayRecording,
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "playback speed multiplier")
}

func replayRecording(cmd *cobra.Command, args []string) error {
	if replaySpeed <= 0 {
		return fmt.Errorf("speed must be positive, got %v", replaySpeed)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	r, err := recording.NewReader(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	cfg.SessionID = r.Header().SessionID
	p := processor.New(logger)
	if err := p.Initialize(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	logger.Info("replaying recording",
		zap.String("path", args[0]),
		zap.String("session_id", r.Header().SessionID),
		zap.Float64("speed", replaySpeed))

	var prev time.Time
	var fed int64
replay:
	for {
		s, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error("replay read failed", zap.Error(err))
			break
		}

		if !prev.IsZero() {
			gap := time.Duration(float64(s.Timestamp.Sub(prev)) / replaySpeed)
			if gap > 0 {
				select {
				case <-ctx.Done():
					break replay
				case <-time.After(gap):
				}
			}
		}
		prev = s.Timestamp

		p.ProcessSample(&s)
		fed++
	}

	if err := p.Stop(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	stats := p.GetStatistics()
	logger.Info("replay summary",
		zap.Int64("fed", fed),
		zap.Int64("processed", stats.SamplesProcessed),
		zap.Int64("events", stats.EventsDetected),
		zap.Int64("anomalies", stats.AnomaliesDetected))
	return nil
}
