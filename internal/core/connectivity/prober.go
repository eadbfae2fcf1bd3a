package connectivity

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Checker はリモートストアへの疎通を確認します。
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc は関数を Checker として扱うためのアダプタです。
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Prober は定期的に疎通確認を行い、結果を Monitor に反映します。
type Prober struct {
	checker  Checker
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProber は Prober を生成します。0 以下の間隔・タイムアウトは既定値になります。
func NewProber(checker Checker, monitor *Monitor, interval, timeout time.Duration) *Prober {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{
		checker:  checker,
		monitor:  monitor,
		interval: interval,
		timeout:  timeout,
		logger:   slog.Default(),
	}
}

// WithLogger はロガーを差し替えます。
func (p *Prober) WithLogger(logger *slog.Logger) *Prober {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// ProbeOnce は一度だけ疎通確認を行い、判定結果を返します。
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.Check(checkCtx)
	if ctx.Err() != nil {
		// 停止による失敗は到達不能とみなしません。
		return p.monitor.Online()
	}
	online := err == nil
	if p.monitor.Set(online) {
		if online {
			p.logger.Info("remote store reachable")
		} else {
			p.logger.Warn("remote store unreachable", "error", err)
		}
	}
	return online
}

// Run は ctx が終了するまで疎通確認を繰り返します。
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.ProbeOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
