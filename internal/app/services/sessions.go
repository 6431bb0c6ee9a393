package services

import (
	"context"
	"sort"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"clinivoice-server-go/internal/domain/action"
	"clinivoice-server-go/internal/domain/asr"
	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/domain/confirm"
	"clinivoice-server-go/internal/domain/duplex"
	"clinivoice-server-go/internal/domain/eventbus"
	"clinivoice-server-go/internal/domain/intent"
	"clinivoice-server-go/internal/domain/mode"
	"clinivoice-server-go/internal/domain/phi"
	"clinivoice-server-go/internal/domain/session"
	"clinivoice-server-go/internal/domain/tts"
	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/storage"
)

// SessionService builds and tracks live sessions. Providers and the
// audit emitter are shared across sessions; everything stateful about
// a call (arbiter, confirmations, mode) is constructed per session.
type SessionService struct {
	cfg     *config.Config
	logger  *logging.Logger
	db      *storage.Database
	emitter *audit.Emitter

	classifier  intent.Classifier
	asrProvider asr.Provider
	ttsProvider tts.Provider
	planner     session.Planner

	mu       sync.RWMutex
	sessions map[string]*session.Session
	infos    map[string]*SessionInfo
}

// SessionInfo is the console-facing snapshot of one live call, kept
// current by the per-session bus subscriptions Open installs.
type SessionInfo struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
}

func NewSessionService(cfg *config.Config, db *storage.Database, emitter *audit.Emitter, logger *logging.Logger) (*SessionService, error) {
	asrCfg, ok := cfg.ASR[cfg.Selected.ASR]
	if !ok {
		return nil, errors.New(errors.KindConfig, "services.NewSessionService", "selected ASR provider not configured: "+cfg.Selected.ASR)
	}
	asrProvider, err := asr.New(cfg.Selected.ASR, asrCfg, logger)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "services.NewSessionService", "build ASR provider", err)
	}

	ttsCfg, ok := cfg.TTS[cfg.Selected.TTS]
	if !ok {
		return nil, errors.New(errors.KindConfig, "services.NewSessionService", "selected TTS provider not configured: "+cfg.Selected.TTS)
	}
	ttsProvider, err := tts.New(cfg.Selected.TTS, ttsCfg, logger)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "services.NewSessionService", "build TTS provider", err)
	}

	nlpCfg := cfg.NLP[cfg.Selected.NLP]
	classifier, err := intent.New(cfg.Selected.NLP, nlpCfg, logger)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "services.NewSessionService", "build classifier", err)
	}

	return &SessionService{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		emitter:     emitter,
		classifier:  classifier,
		asrProvider: asrProvider,
		ttsProvider: ttsProvider,
		planner:     NewClinicalPlanner(nil),
		sessions:    make(map[string]*session.Session),
		infos:       make(map[string]*SessionInfo),
	}, nil
}

// Open wires a new session for one connection. The caller owns the
// output; Run starts the loop and removes the session when it exits.
func (s *SessionService) Open(output session.Output) (*session.Session, error) {
	id := uuid.New().String()
	policyCfg := s.cfg.Policy
	bus := eventbus.New()

	if err := s.watch(id, bus); err != nil {
		return nil, err
	}

	arbiter := duplex.NewArbiter(id, nil, policyCfg, bus, s.emitter, s.logger)
	confirms := confirm.NewManager(id, policyCfg.ConfirmationTimeout.Std(), s.emitter, bus, s.logger)
	modes := mode.NewController(id, policyCfg.ProviderModeTTL.Std(), s.emitter, bus, s.logger)
	policy := phi.NewPolicy(id, policyCfg, s.emitter, s.logger)

	executor, err := action.NewOrderLogExecutor(s.db, id, s.logger)
	if err != nil {
		return nil, err
	}

	sess := session.New(id, session.Deps{
		PolicyCfg:  policyCfg,
		Arbiter:    arbiter,
		Confirms:   confirms,
		Modes:      modes,
		Policy:     policy,
		Classifier: s.classifier,
		ASR:        s.asrProvider,
		TTS:        s.ttsProvider,
		Executor:   executor,
		Planner:    s.planner,
		Output:     output,
		Emitter:    s.emitter,
		Logger:     s.logger,
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.infos[id] = &SessionInfo{
		ID:        id,
		State:     string(duplex.StateIdle),
		Mode:      string(mode.ModePatient),
		StartedAt: time.Now(),
	}
	s.mu.Unlock()
	return sess, nil
}

// watch feeds the console snapshot from one session's private bus.
func (s *SessionService) watch(id string, bus evbus.Bus) error {
	if err := bus.Subscribe(eventbus.EventDuplexStateChanged, func(data eventbus.DuplexEventData) {
		s.recordDuplexState(id, data.To)
	}); err != nil {
		return errors.Wrap(errors.KindPlatform, "services.watch", "subscribe duplex events", err)
	}
	if err := bus.Subscribe(eventbus.EventModeSwitched, func(data eventbus.ModeEventData) {
		s.recordMode(id, data.To)
	}); err != nil {
		return errors.Wrap(errors.KindPlatform, "services.watch", "subscribe mode events", err)
	}
	return nil
}

func (s *SessionService) recordDuplexState(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.infos[id]; ok {
		info.State = state
	}
}

func (s *SessionService) recordMode(id, modeName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.infos[id]; ok {
		info.Mode = modeName
	}
}

// Infos snapshots every live session for the console, oldest first.
func (s *SessionService) Infos() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(s.infos))
	for _, info := range s.infos {
		infos = append(infos, *info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].StartedAt.Before(infos[j].StartedAt) })
	return infos
}

// Run drives the session loop and unregisters on exit.
func (s *SessionService) Run(ctx context.Context, sess *session.Session) {
	sess.Run(ctx)
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	delete(s.infos, sess.ID)
	s.mu.Unlock()
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

const (
	clipMaxAge    = time.Hour
	purgeInterval = 10 * time.Minute
)

// StartMaintenance sweeps synthesized clips off disk in the background
// until ctx ends, then removes whatever is left.
func (s *SessionService) StartMaintenance(ctx context.Context) {
	purger, ok := s.ttsProvider.(tts.Purger)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				purger.Purge(0)
				return
			case <-ticker.C:
				purger.Purge(clipMaxAge)
			}
		}
	}()
}

// CloseAll hangs up every live session.
func (s *SessionService) CloseAll(reason string) {
	s.mu.RLock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.Post(session.Hangup{Reason: reason})
		<-sess.Done()
	}
}
