package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"sarraf_go/internal/domain"
	"sarraf_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout = 10 * time.Second
	readTimeout = 90 * time.Second

	// DefaultFallbackInterval is the pull-retry cadence while the viewer
	// is disconnected and has never held any data
	DefaultFallbackInterval = 30 * time.Second
)

// DurableCache is the viewer's persistent price cache
type DurableCache interface {
	Load() ([]domain.PriceRecord, time.Time, bool)
	Store(records []domain.PriceRecord) error
}

// pushEnvelope is the inbound wire frame from the push channel
type pushEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Prices []domain.PriceRecord `json:"prices"`
		Meta   domain.PriceMeta     `json:"meta"`
	} `json:"payload"`
}

// Options configures a Syncer
type Options struct {
	WSURL            string
	FallbackInterval time.Duration
	// OnChange is invoked with the new displayed list after every
	// accepted update. Rendering is the caller's business.
	OnChange func([]domain.PriceRecord)
}

// Syncer merges the durable local cache, the bootstrap pull and the push
// channel into one coherent, monotonically non-empty view. Once any
// valid data has been displayed, no empty or malformed update can blank
// it; only an explicit Reset does.
type Syncer struct {
	opts   Options
	cache  DurableCache
	puller Puller

	mu           sync.RWMutex
	state        ConnectionState
	prices       []domain.PriceRecord
	lastUpdate   time.Time
	channelUp    bool
	everDialedOK bool

	connMu sync.Mutex
	conn   *websocket.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncer creates a viewer state machine. cache and puller may be nil;
// the corresponding tiers are then simply skipped.
func NewSyncer(opts Options, cache DurableCache, puller Puller) *Syncer {
	if opts.FallbackInterval <= 0 {
		opts.FallbackInterval = DefaultFallbackInterval
	}
	return &Syncer{
		opts:   opts,
		cache:  cache,
		puller: puller,
		state:  StateBootstrapping,
	}
}

// Start bootstraps from the local cache synchronously, then runs the
// pull, push and fallback loops until Stop or context cancellation.
func (s *Syncer) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.bootstrap()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.initialPull(ctx)
	}()

	if s.opts.WSURL != "" {
		s.wg.Add(1)
		go s.connectionLoop(ctx)
	}

	s.wg.Add(1)
	go s.fallbackLoop(ctx)

	return nil
}

// Stop tears the viewer down. The only way out of the state machine.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConn()
	s.wg.Wait()
}

// bootstrap reads the durable local cache before any network round-trip.
// A fresh entry renders immediately; a stale one is ignored and the
// viewer shows a loading state until network data arrives.
func (s *Syncer) bootstrap() {
	s.setState(StateBootstrapping)

	if s.cache != nil {
		if records, writtenAt, ok := s.cache.Load(); ok {
			s.mu.Lock()
			s.prices = records
			s.lastUpdate = writtenAt
			s.state = StateLocalCacheWarm
			s.mu.Unlock()
			s.notify(records)
			slog.Info("Rendered local cache", slog.Int("count", len(records)))
			return
		}
	}
	s.setState(StateLocalCacheCold)
}

// ApplyPush feeds one raw frame from the push channel into the machine.
// Malformed frames and empty lists are discarded silently; the displayed
// list is monotonically non-empty once any valid data has been received.
func (s *Syncer) ApplyPush(frame []byte) bool {
	var env pushEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		slog.Debug("Ignoring malformed push", slog.Any("error", err))
		return false
	}
	if env.Event != "priceUpdate" || env.Payload.Prices == nil {
		return false
	}

	at := env.Payload.Meta.Time
	if at.IsZero() {
		at = time.Now()
	}
	return s.apply(env.Payload.Prices, at)
}

// apply replaces the displayed list wholesale with the visible subset of
// a valid update, persists it, and reports whether it was accepted.
func (s *Syncer) apply(records []domain.PriceRecord, at time.Time) bool {
	visible := domain.FilterVisible(records)
	if len(visible) == 0 {
		// Anti-flicker: never let an empty update blank a good list.
		return false
	}
	domain.SortRecords(visible)

	s.mu.Lock()
	s.prices = visible
	s.lastUpdate = at
	s.state = StateConnected
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Store(visible); err != nil {
			slog.Warn("Local cache write failed", slog.Any("error", err))
		}
	}
	s.notify(visible)
	return true
}

// Reset clears the displayed list (explicit viewer reset only)
func (s *Syncer) Reset() {
	s.mu.Lock()
	s.prices = nil
	s.lastUpdate = time.Time{}
	s.state = StateLocalCacheCold
	s.mu.Unlock()
}

// Prices returns a copy of the displayed list
func (s *Syncer) Prices() []domain.PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneRecords(s.prices)
}

// State returns the current reconciliation state
func (s *Syncer) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastUpdate returns when the displayed list was last replaced
func (s *Syncer) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Connected reports whether the push channel is currently up
func (s *Syncer) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelUp
}

func (s *Syncer) hasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices) > 0
}

func (s *Syncer) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Syncer) notify(records []domain.PriceRecord) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(domain.CloneRecords(records))
	}
}

// initialPull fetches the current list over the request/response channel
// so a viewer never waits a full cycle for its first data.
func (s *Syncer) initialPull(ctx context.Context) {
	if s.puller == nil {
		return
	}
	records, err := s.puller.PullPrices(ctx)
	if err != nil {
		slog.Warn("Bootstrap pull failed", slog.Any("error", err))
		return
	}
	if s.apply(records, time.Now()) {
		slog.Info("Bootstrap pull applied", slog.Int("count", len(records)))
	}
}

// fallbackLoop re-attempts the pull chain on a fixed interval while the
// channel is down and the viewer has never held any data. It exits for
// good once any non-empty data is received.
func (s *Syncer) fallbackLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hasData() {
				return
			}
			if s.Connected() || s.puller == nil {
				continue
			}
			records, err := s.puller.PullPrices(ctx)
			if err != nil {
				slog.Warn("Fallback pull failed", slog.Any("error", err))
				continue
			}
			s.apply(records, time.Now())
		}
	}
}

// connectionLoop keeps the push channel alive with unbounded retries and
// bounded exponential backoff. Cancellation only on viewer teardown.
func (s *Syncer) connectionLoop(ctx context.Context) {
	defer s.wg.Done()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.dial(ctx); err != nil {
			if !domain.IsRetriable(err) {
				// A dial that can never succeed (unusable URL) must not
				// burn retries forever.
				slog.Error("Channel unusable, giving up", slog.Any("error", err))
				return
			}
			slog.Warn("Channel dial failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		s.readLoop(ctx)
		s.handleDisconnect()
	}
}

func (s *Syncer) dial(ctx context.Context) error {
	if u, err := url.Parse(s.opts.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return domain.NewFatalNetworkError("dial",
			fmt.Errorf("unusable channel URL: %s", s.opts.WSURL))
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.opts.WSURL, http.Header{})
	if err != nil {
		return domain.NewNetworkError("dial",
			fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err))
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	reconnect := false
	s.mu.Lock()
	s.channelUp = true
	if s.everDialedOK {
		// Re-established after a drop: Connected again only on the first
		// valid push.
		s.state = StateReconnecting
		reconnect = true
	}
	s.everDialedOK = true
	s.mu.Unlock()

	if reconnect {
		slog.Info("Channel re-established")
	} else {
		slog.Info("Channel established")
	}
	return nil
}

func (s *Syncer) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			s.closeConn()
			return
		}
		s.ApplyPush(frame)
	}
}

// handleDisconnect retains the last good list unchanged; only the
// connectivity indicator moves.
func (s *Syncer) handleDisconnect() {
	s.mu.Lock()
	s.channelUp = false
	s.state = StateDisconnectedRetaining
	retained := len(s.prices)
	s.mu.Unlock()
	slog.Info("Channel lost, retaining displayed list", slog.Int("count", retained))
}

func (s *Syncer) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
