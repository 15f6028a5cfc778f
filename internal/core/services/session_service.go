package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	apperrors "microcourses/pkg/errors"
	"microcourses/pkg/tracing"
	"microcourses/pkg/validation"

	"go.uber.org/zap"
)

const (
	msgLoginFailed       = "Login failed"
	msgRegisterFailed    = "Registration failed"
	msgUpdateFailed      = "Update failed"
	msgPasswordFailed    = "Password change failed"
	msgApplicationFailed = "Application failed"
)

const maxMotivationLength = 2000

// Result is what every session operation reports to its caller. Failures
// carry a message fit for display and are never returned as errors.
type Result struct {
	Success bool
	User    *domain.User
	Message string
}

func failed(message string) Result {
	return Result{Message: message}
}

// SessionService owns the process-wide session. All state changes go
// through domain.Reduce.
type SessionService struct {
	api     ports.AuthAPI
	creds   ports.CredentialStore
	metrics ports.Metrics
	logger  *zap.SugaredLogger

	mu        sync.RWMutex
	session   domain.Session
	epoch     uint64
	listeners map[int]func(domain.Session)
	nextID    int

	// commitMu keeps credential writes and the matching transition together
	commitMu sync.Mutex

	started atomic.Bool
	ready   chan struct{}
	once    sync.Once
}

func NewSessionService(api ports.AuthAPI, creds ports.CredentialStore, metrics ports.Metrics, logger *zap.SugaredLogger) *SessionService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionService{
		api:       api,
		creds:     creds,
		metrics:   metrics,
		logger:    logger,
		session:   domain.Session{Status: domain.StatusUnresolved},
		listeners: make(map[int]func(domain.Session)),
		ready:     make(chan struct{}),
	}
}

// Snapshot returns a consistent copy of the session.
func (s *SessionService) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Ready is closed once the startup credential check has resolved.
func (s *SessionService) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until Ready is closed or ctx is done.
func (s *SessionService) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn to be called with the new session after every
// transition. The returned func removes it.
func (s *SessionService) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func actionName(a domain.Action) string {
	switch a.(type) {
	case domain.LoginSucceeded:
		return "login_succeeded"
	case domain.LogoutCompleted:
		return "logout_completed"
	case domain.IdentityUpdated:
		return "identity_updated"
	case domain.LoadingResolved:
		return "loading_resolved"
	default:
		return "unknown"
	}
}

func (s *SessionService) dispatch(a domain.Action) {
	s.dispatchIf(0, false, a)
}

// dispatchIf applies a only when no other transition happened since epoch
// was observed. It reports whether a was applied.
func (s *SessionService) dispatchIf(epoch uint64, guarded bool, a domain.Action) bool {
	s.mu.Lock()
	if guarded && s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.session = domain.Reduce(s.session, a)
	s.epoch++
	snapshot := s.session.Clone()
	listeners := make([]func(domain.Session), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSessionTransition(actionName(a), snapshot.Authenticated())
	}
	s.logger.Debugw("session transition", "action", actionName(a), "status", snapshot.Status.String())

	for _, l := range listeners {
		l(snapshot)
	}
	return true
}

func (s *SessionService) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *SessionService) markReady() {
	s.once.Do(func() { close(s.ready) })
}

// Initialize resolves the session from the stored credential. Only the first
// call does any work; later calls return at once, use WaitReady to block.
func (s *SessionService) Initialize(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer s.markReady()

	ctx, span := tracing.TraceSessionOperation(ctx, "initialize")
	defer span.End()

	epoch := s.currentEpoch()
	token, err := s.creds.Read(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoCredential) {
			s.logger.Warnw("cannot read stored credential", "error", err)
		}
		s.dispatchIf(epoch, true, domain.LoadingResolved{})
		s.resolveIfPending()
		return
	}
	s.logger.Debugw("restoring session", "credential_length", len(token))

	user, err := s.api.Profile(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Infow("stored credential rejected", "error", err)

		// The identity goes first so no reader sees it without a credential.
		s.commitMu.Lock()
		if s.dispatchIf(epoch, true, domain.LogoutCompleted{}) {
			if clearErr := s.creds.Clear(ctx); clearErr != nil {
				s.logger.Errorw("failed to clear credential", "error", clearErr)
			}
		}
		s.commitMu.Unlock()
		s.resolveIfPending()
		return
	}

	if !s.dispatchIf(epoch, true, domain.LoginSucceeded{User: *user}) {
		s.logger.Debugw("session changed during startup, discarding profile")
	}
	s.resolveIfPending()
}

// resolveIfPending guarantees that startup never leaves the session
// unresolved.
func (s *SessionService) resolveIfPending() {
	s.mu.RLock()
	pending := s.session.Status == domain.StatusUnresolved
	s.mu.RUnlock()
	if pending {
		s.dispatch(domain.LoadingResolved{})
	}
}

func (s *SessionService) Login(ctx context.Context, req domain.LoginRequest) Result {
	ctx, span := tracing.TraceSessionOperation(ctx, "login")
	defer span.End()

	if err := validation.ValidateEmail(req.Email); err != nil {
		return failed(err.Error())
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return failed(err.Error())
	}

	payload, err := s.api.Login(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Infow("login rejected", "email", req.Email, "error", err)
		return failed(apperrors.MessageOr(err, msgLoginFailed))
	}
	return s.establish(ctx, payload, msgLoginFailed)
}

func (s *SessionService) Register(ctx context.Context, req domain.RegisterRequest) Result {
	ctx, span := tracing.TraceSessionOperation(ctx, "register")
	defer span.End()

	if err := validation.ValidateName(req.Name); err != nil {
		return failed(err.Error())
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		return failed(err.Error())
	}
	if err := validation.ValidateNewPassword(req.Password); err != nil {
		return failed(err.Error())
	}

	payload, err := s.api.Register(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Infow("registration rejected", "email", req.Email, "error", err)
		return failed(apperrors.MessageOr(err, msgRegisterFailed))
	}
	return s.establish(ctx, payload, msgRegisterFailed)
}

// establish stores the credential and signs the user in. The session is
// left untouched when the credential cannot be stored.
func (s *SessionService) establish(ctx context.Context, payload *domain.AuthPayload, fallback string) Result {
	if payload == nil || payload.Token == "" || payload.User.ID == "" {
		s.logger.Warnw("auth response without token or user")
		return failed(fallback)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.creds.Write(ctx, payload.Token); err != nil {
		s.logger.Errorw("failed to store credential", "error", err)
		return failed(fallback)
	}
	s.dispatch(domain.LoginSucceeded{User: payload.User})
	s.markReady()

	user := payload.User.Clone()
	tracing.AddSpanAttributes(ctx, tracing.UserIDKey.String(string(user.ID)))
	s.logger.Infow("signed in", "user_id", user.ID, "role", user.Role)
	return Result{Success: true, User: user}
}

// Logout always ends the session locally, whatever the backend says.
func (s *SessionService) Logout(ctx context.Context) {
	ctx, span := tracing.TraceSessionOperation(ctx, "logout")
	defer span.End()

	if _, err := s.creds.Read(ctx); err == nil {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.Warnw("remote logout failed", "error", err)
		}
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.dispatch(domain.LogoutCompleted{})
	s.markReady()
	if err := s.creds.Clear(ctx); err != nil {
		s.logger.Errorw("failed to clear credential", "error", err)
	}
}

// HandleForcedLogout ends the session and discards the rejected credential.
func (s *SessionService) HandleForcedLogout(ctx context.Context) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.logger.Infow("session ended by backend")
	s.dispatch(domain.LogoutCompleted{})
	if err := s.creds.Clear(ctx); err != nil {
		s.logger.Errorw("failed to clear credential", "error", err)
	}
}

func (s *SessionService) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) Result {
	ctx, span := tracing.TraceSessionOperation(ctx, "update_profile")
	defer span.End()

	if update.Name != "" {
		if err := validation.ValidateName(update.Name); err != nil {
			return failed(err.Error())
		}
	}
	if update.Avatar != "" {
		if err := validation.ValidateURL(update.Avatar); err != nil {
			return failed(err.Error())
		}
	}

	patch, err := s.api.UpdateProfile(ctx, update)
	if err != nil {
		tracing.RecordError(ctx, err)
		return failed(apperrors.MessageOr(err, msgUpdateFailed))
	}
	return s.applyPatch(patch)
}

func (s *SessionService) ChangePassword(ctx context.Context, change domain.PasswordChange) Result {
	ctx, span := tracing.TraceSessionOperation(ctx, "change_password")
	defer span.End()

	if err := validation.ValidatePassword(change.CurrentPassword); err != nil {
		return failed(err.Error())
	}
	if err := validation.ValidateNewPassword(change.NewPassword); err != nil {
		return failed(err.Error())
	}

	if err := s.api.ChangePassword(ctx, change); err != nil {
		tracing.RecordError(ctx, err)
		return failed(apperrors.MessageOr(err, msgPasswordFailed))
	}
	return Result{Success: true}
}

func (s *SessionService) ApplyForCreator(ctx context.Context, req domain.CreatorApplicationRequest) Result {
	ctx, span := tracing.TraceSessionOperation(ctx, "apply_creator")
	defer span.End()

	if err := validation.ValidateNonEmptyString(req.Motivation, "motivation"); err != nil {
		return failed(err.Error())
	}
	if err := validation.ValidateStringLength(req.Motivation, 1, maxMotivationLength, "motivation"); err != nil {
		return failed(err.Error())
	}
	if req.Portfolio != "" {
		if err := validation.ValidateURL(req.Portfolio); err != nil {
			return failed(err.Error())
		}
	}

	app, err := s.api.ApplyForCreator(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return failed(apperrors.MessageOr(err, msgApplicationFailed))
	}
	patch, err := json.Marshal(map[string]any{"creatorApplication": app})
	if err != nil {
		return failed(msgApplicationFailed)
	}
	return s.applyPatch(patch)
}

func (s *SessionService) applyPatch(patch json.RawMessage) Result {
	if len(patch) > 0 && string(patch) != "null" {
		s.dispatch(domain.IdentityUpdated{Patch: patch})
	}
	return Result{Success: true, User: s.Snapshot().User}
}
