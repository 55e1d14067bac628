package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/detector"
	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// AlertSink receives high-probability signal alerts. Implemented by the
// notify package.
type AlertSink interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ScanService drives periodic live scans: run the detector across active
// markets, persist every scored signal, and raise alerts for signals above
// the configured probability threshold.
type ScanService struct {
	scanner   *detector.Scanner
	signals   domain.SignalStore
	bus       domain.SignalBus
	alerts    AlertSink
	threshold float64
	interval  time.Duration
	logger    *slog.Logger
}

// NewScanService wires a ScanService. signals, bus, and alerts are optional
// and skipped when nil.
func NewScanService(
	scanner *detector.Scanner,
	signals domain.SignalStore,
	bus domain.SignalBus,
	alerts AlertSink,
	threshold float64,
	interval time.Duration,
	logger *slog.Logger,
) *ScanService {
	if threshold <= 0 {
		threshold = 0.7
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ScanService{
		scanner:   scanner,
		signals:   signals,
		bus:       bus,
		alerts:    alerts,
		threshold: threshold,
		interval:  interval,
		logger:    logger.With(slog.String("component", "scan_service")),
	}
}

// ScanOnce runs one full scan cycle and returns the scored signals ranked by
// probability descending.
func (s *ScanService) ScanOnce(ctx context.Context) ([]domain.Signal, error) {
	signals, err := s.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan_service: scan: %w", err)
	}

	alerted := 0
	for _, sig := range signals {
		s.persist(ctx, sig)
		if sig.InsiderProbability >= s.threshold {
			alerted++
			s.alert(ctx, sig)
		}
	}

	s.logger.InfoContext(ctx, "scan cycle finished",
		slog.Int("signals", len(signals)),
		slog.Int("alerted", alerted),
	)
	return signals, nil
}

// RunLoop runs scan cycles on the configured interval until the context is
// cancelled. Individual cycle failures are logged, not fatal.
func (s *ScanService) RunLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "scan cycle failed",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ScanService) persist(ctx context.Context, sig domain.Signal) {
	if s.signals == nil {
		return
	}
	if err := s.signals.Insert(ctx, sig); err != nil {
		s.logger.WarnContext(ctx, "persist signal failed",
			slog.String("market_id", sig.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// alert publishes the signal on the bus and notifies the alert sink.
func (s *ScanService) alert(ctx context.Context, sig domain.Signal) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, "insider_signal", payload); err != nil {
			s.logger.WarnContext(ctx, "publish signal failed",
				slog.String("market_id", sig.MarketID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, "signals", payload); err != nil {
			s.logger.WarnContext(ctx, "append signal stream failed",
				slog.String("market_id", sig.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.alerts != nil {
		title := fmt.Sprintf("Insider signal: %.0f%% on %s", sig.InsiderProbability*100, sig.MarketID)
		message := fmt.Sprintf(
			"%s\ndirection=%s risk=%.1f trades=%d volume=$%.0f",
			sig.Question, sig.ImpliedDirection, sig.RiskScore, sig.TradeCount, sig.TotalVolumeUSD,
		)
		if err := s.alerts.Notify(ctx, "insider_signal", title, message); err != nil {
			s.logger.WarnContext(ctx, "alert delivery failed",
				slog.String("market_id", sig.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}
