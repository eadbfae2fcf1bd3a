package geolocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/geo"
)

// Options は位置取得の設定です。
type Options struct {
	HighAccuracy  bool
	Timeout       time.Duration
	MaxReadingAge time.Duration
	// WatchInterval は継続取得モードでの取得間隔です。
	WatchInterval time.Duration
}

// DefaultOptions はブラウザ版と同じ既定値を返します。
func DefaultOptions() Options {
	return Options{
		HighAccuracy:  true,
		Timeout:       10 * time.Second,
		MaxReadingAge: 60 * time.Second,
		WatchInterval: 5 * time.Second,
	}
}

// Platform は端末の位置情報機能の抽象です。
type Platform interface {
	CurrentPosition(ctx context.Context, opts Options) (geo.Reading, error)
}

// PlatformFunc は関数を Platform として扱うためのアダプタです。
type PlatformFunc func(ctx context.Context, opts Options) (geo.Reading, error)

func (f PlatformFunc) CurrentPosition(ctx context.Context, opts Options) (geo.Reading, error) {
	return f(ctx, opts)
}

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// WatchFunc は継続取得モードで取得結果を受け取るコールバックです。
type WatchFunc func(reading geo.Reading, err error)

// Provider は位置取得を単発・継続の両モードで提供します。
type Provider struct {
	platform Platform
	opts     Options
	clock    Clock
	logger   *slog.Logger

	mu        sync.Mutex
	last      geo.Reading
	hasLast   bool
	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// NewProvider は Provider を生成します。platform が nil の場合は常に ErrUnsupported を返します。
func NewProvider(platform Platform, opts Options, clock Clock) *Provider {
	if clock == nil {
		clock = realClock{}
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = DefaultOptions().WatchInterval
	}
	return &Provider{
		platform: platform,
		opts:     opts,
		clock:    clock,
		logger:   slog.Default(),
	}
}

// WithLogger はロガーを差し替えます。
func (p *Provider) WithLogger(logger *slog.Logger) *Provider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Options は現在の設定を返します。
func (p *Provider) Options() Options {
	return p.opts
}

// Last は保持している直近の位置を返します。
func (p *Provider) Last() (geo.Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// GetCurrentLocation は位置を一度だけ取得します。
// MaxReadingAge 以内に取得した位置を保持していればそれを返します。
func (p *Provider) GetCurrentLocation(ctx context.Context) (geo.Reading, error) {
	if cached, ok := p.fresh(); ok {
		return cached, nil
	}
	return p.acquire(ctx)
}

// StartWatching は継続取得を開始します。既に開始済みの場合は false を返し何もしません。
// ctx がキャンセルされるか StopWatching が呼ばれるまで fn に結果を渡し続けます。
func (p *Provider) StartWatching(ctx context.Context, fn WatchFunc) bool {
	p.mu.Lock()
	if p.stopWatch != nil {
		p.mu.Unlock()
		return false
	}
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.stopWatch = cancel
	p.watchDone = done
	p.mu.Unlock()

	go p.watch(watchCtx, fn, done)
	return true
}

// StopWatching は継続取得を停止し、ループの終了を待ちます。
func (p *Provider) StopWatching() {
	p.mu.Lock()
	cancel := p.stopWatch
	done := p.watchDone
	p.stopWatch = nil
	p.watchDone = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Watching は継続取得中かどうかを返します。
func (p *Provider) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopWatch != nil
}

func (p *Provider) watch(ctx context.Context, fn WatchFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.opts.WatchInterval)
	defer ticker.Stop()

	for {
		reading, err := p.acquire(ctx)
		if ctx.Err() != nil {
			return
		}
		if fn != nil {
			fn(reading, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Provider) fresh() (geo.Reading, bool) {
	if p.opts.MaxReadingAge <= 0 {
		return geo.Reading{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasLast {
		return geo.Reading{}, false
	}
	if p.clock.Now().Sub(p.last.CapturedAt()) > p.opts.MaxReadingAge {
		return geo.Reading{}, false
	}
	return p.last, true
}

func (p *Provider) acquire(ctx context.Context) (geo.Reading, error) {
	if p.platform == nil {
		p.clear()
		return geo.Reading{}, &PositionError{Code: CodeUnsupported, Message: "no location capability"}
	}

	callCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	type result struct {
		reading geo.Reading
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := p.platform.CurrentPosition(callCtx, p.opts)
		ch <- result{reading: r, err: err}
	}()

	var (
		reading geo.Reading
		err     error
	)
	select {
	case res := <-ch:
		reading, err = res.reading, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = &PositionError{Code: CodeTimeout, Message: fmt.Sprintf("no fix within %s", p.opts.Timeout)}
		}
	}

	if err != nil {
		err = normalizeError(err)
		// 呼び出し側の取り消しは測位の失敗ではないため、キャッシュは残します。
		if !errors.Is(err, context.Canceled) {
			p.clear()
		}
		p.logger.Debug("location request failed", "error", err)
		return geo.Reading{}, err
	}

	p.mu.Lock()
	p.last = reading
	p.hasLast = true
	p.mu.Unlock()

	return reading, nil
}

func (p *Provider) clear() {
	p.mu.Lock()
	p.last = geo.Reading{}
	p.hasLast = false
	p.mu.Unlock()
}

func normalizeError(err error) error {
	var posErr *PositionError
	switch {
	case errors.As(err, &posErr):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &PositionError{Code: CodeTimeout, Message: err.Error()}
	default:
		return &PositionError{Code: CodePositionUnavailable, Message: err.Error()}
	}
}
