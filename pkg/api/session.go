package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/internal/metrics"
	"github.com/0xmhha/explorer-go/pkg/alert"
	"github.com/0xmhha/explorer-go/pkg/api/websocket"
	"github.com/0xmhha/explorer-go/pkg/router"
	"github.com/0xmhha/explorer-go/pkg/search"
)

// TransportFactory creates the query node transport of a new session
type TransportFactory func() (search.Transport, error)

// Publisher pushes session events to connected websocket clients
type Publisher interface {
	Publish(session string, eventType websocket.SubscriptionType, data interface{})
}

// Session is one explorer session: its own router, pagination cache and
// alert history.
type Session struct {
	ID         string
	Controller *search.Controller
	Alerts     *alert.Recorder

	mu         sync.Mutex
	lastSeen   time.Time
	unsubViews func()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) close() {
	s.unsubViews()
	s.Controller.Close()
}

// SessionManager creates, looks up and expires sessions
type SessionManager struct {
	cfg       *Config
	transport TransportFactory
	publisher Publisher
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a manager and starts its expiry loop. publisher
// may be nil. Call Stop to end the loop.
func NewSessionManager(cfg *Config, transport TransportFactory, publisher Publisher, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &SessionManager{
		cfg:       cfg,
		transport: transport,
		publisher: publisher,
		logger:    logger,
		sessions:  make(map[string]*Session),
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go m.expireLoop(expiryInterval(cfg.SessionTTL))
	return m
}

func expiryInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Get returns the live session id, if any
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Create starts a new session
func (m *SessionManager) Create() (*Session, error) {
	transport, err := m.transport()
	if err != nil {
		return nil, err
	}

	alerts := alert.NewRecorder()
	var sess *Session

	alerters := alert.Multi{alerts, alert.NewLogAlerter(m.logger)}
	if m.publisher != nil {
		alerters = append(alerters, alert.Func(func(_ context.Context, message string) {
			m.publisher.Publish(sess.ID, websocket.SubscribeAlert, message)
		}))
	}

	ctrl := search.New(search.Config{
		QueryNode:        m.cfg.QueryNode,
		ExternalExplorer: m.cfg.ExternalExplorer,
		PageSize:         m.cfg.PageSize,
	}, transport, router.New(nil), alerters, m.logger)

	sess = &Session{
		ID:         ctrl.ID(),
		Controller: ctrl,
		Alerts:     alerts,
		lastSeen:   m.now(),
		unsubViews: func() {},
	}
	if m.publisher != nil {
		sess.unsubViews = ctrl.Subscribe(func(v search.View) {
			m.publisher.Publish(sess.ID, websocket.SubscribeView, v)
		})
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(count))

	m.logger.Debug("session created", zap.String("session", sess.ID), zap.Int("sessions", count))
	return sess, nil
}

// FromRequest returns the session named by the request cookie, creating one
// (and setting the cookie) when it is missing or expired.
func (m *SessionManager) FromRequest(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.cfg.SessionCookie); err == nil {
		if s, ok := m.Get(c.Value); ok {
			return s, nil
		}
	}

	s, err := m.Create()
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.SessionCookie,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s, nil
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire drops sessions idle for longer than the TTL and returns how many
// were removed
func (m *SessionManager) Expire() int {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince(now) > m.cfg.SessionTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	if len(expired) > 0 {
		metrics.ActiveSessions.Set(float64(count))
		m.logger.Debug("sessions expired", zap.Int("expired", len(expired)), zap.Int("sessions", count))
	}
	return len(expired)
}

func (m *SessionManager) expireLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Expire()
		}
	}
}

// Stop ends the expiry loop and closes every session
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done

		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range sessions {
			s.close()
		}
		metrics.ActiveSessions.Set(0)
	})
}
