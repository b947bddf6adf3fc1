package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/pkg/logger"

	"github.com/google/uuid"
)

const (
	// HistoryPageSize is the size of the first history window
	HistoryPageSize = 50
	// MorePageSize is the size of each older page
	MorePageSize = 20
	// DefaultErrorTTL is how long an error stays visible
	DefaultErrorTTL = 5 * time.Second
)

var (
	ErrEmptyMessage = errors.New("message content is required")
	ErrNotRetryable = errors.New("message is not a failed send")
	ErrStoreClosed  = errors.New("store is closed")
)

// StoreOption customises a Store
type StoreOption func(*Store)

// WithErrorTTL overrides how long errors stay visible
func WithErrorTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.errorTTL = d }
}

// WithIDGenerator overrides how optimistic ids are minted
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// WithOnChange registers a callback invoked after every state change. It is
// called outside the store lock.
func WithOnChange(fn func(State)) StoreOption {
	return func(s *Store) { s.onChange = fn }
}

// WithLogger sets the logger for background failures
func WithLogger(l *logger.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// Store owns the client State and runs the API calls that drive it. All
// mutation goes through Reduce.
type Store struct {
	mu       sync.Mutex
	state    State
	api      API
	log      *logger.Logger
	errorTTL time.Duration
	newID    func() string
	onChange func(State)
	timers   map[uint64]*time.Timer
	closed   bool
}

// NewStore creates a Store over api
func NewStore(api API, opts ...StoreOption) *Store {
	s := &Store{
		api:      api,
		log:      logger.Discard(),
		errorTTL: DefaultErrorTTL,
		newID:    func() string { return TempIDPrefix + uuid.NewString() },
		timers:   make(map[uint64]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) dispatch(e Event) State {
	s.mu.Lock()
	if s.closed {
		st := s.state
		s.mu.Unlock()
		return st
	}
	prevSeq := s.state.ErrorSeq
	s.state = Reduce(s.state, e)
	st := s.state
	if st.ErrorSeq != prevSeq && st.Error != "" && s.errorTTL > 0 {
		seq := st.ErrorSeq
		s.timers[seq] = time.AfterFunc(s.errorTTL, func() {
			s.mu.Lock()
			delete(s.timers, seq)
			s.mu.Unlock()
			s.dispatch(ErrorExpired{Seq: seq})
		})
	}
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(st)
	}
	return st
}

// SetDraft replaces the compose text
func (s *Store) SetDraft(text string) {
	s.dispatch(DraftChanged{Text: text})
}

// Send posts content as a new user message. The message is shown
// immediately and swapped for the persisted pair once the server answers.
func (s *Store) Send(ctx context.Context, content string) error {
	return s.send(ctx, content, false)
}

// Retry resends the content of a failed message as a new send. The failed
// entry stays in the list.
func (s *Store) Retry(ctx context.Context, key string) error {
	msg, ok := s.State().Find(key)
	if !ok || !msg.Failed {
		return ErrNotRetryable
	}
	return s.send(ctx, msg.Content, true)
}

func (s *Store) send(ctx context.Context, content string, retry bool) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if s.isClosed() {
		return ErrStoreClosed
	}

	now := time.Now().UTC()
	temp := Message{
		Message: models.Message{
			Content:   trimmed,
			Role:      models.RoleUser,
			Timestamp: now,
		},
		LocalID: s.newID(),
		Retry:   retry,
	}
	s.dispatch(SendStarted{Temp: temp})

	req := models.SendMessageRequest{
		Content: trimmed,
		Role:    models.RoleUser,
		Metadata: &models.RequestMetadata{
			Retry:     retry,
			Timestamp: now.Format(time.RFC3339),
		},
	}
	resp, err := s.api.SendMessage(ctx, req)
	if err != nil {
		s.dispatch(SendFailed{TempID: temp.LocalID, Content: trimmed, Err: errorText(err, "Failed to send message")})
		return err
	}

	s.dispatch(SendSucceeded{TempID: temp.LocalID, User: resp.UserMessage, AI: resp.AIMessage})
	s.LoadStats(ctx)
	return nil
}

// LoadHistory replaces the loaded messages with the newest window
func (s *Store) LoadHistory(ctx context.Context) error {
	s.dispatch(HistoryStarted{})
	resp, err := s.api.History(ctx, HistoryPageSize, 0)
	if err != nil {
		s.dispatch(LoadFailed{Err: errorText(err, "Failed to load chat history")})
		return err
	}
	s.dispatch(HistoryLoaded{Messages: resp.Messages, HasMore: resp.HasMore})
	return nil
}

// LoadMore prepends the next older page. It does nothing when there is
// nothing older or a load is already running.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	st := s.state
	if !st.HasMore || st.IsLoadingMessages {
		s.mu.Unlock()
		return nil
	}
	s.state = Reduce(s.state, MoreStarted{})
	st = s.state
	onChange := s.onChange
	s.mu.Unlock()
	if onChange != nil {
		onChange(st)
	}

	resp, err := s.api.History(ctx, MorePageSize, st.ConfirmedCount())
	if err != nil {
		s.dispatch(LoadFailed{Err: errorText(err, "Failed to load more messages")})
		return err
	}
	s.dispatch(MoreLoaded{Messages: resp.Messages, HasMore: resp.HasMore})
	return nil
}

// Clear deletes the conversation on the server and locally
func (s *Store) Clear(ctx context.Context) error {
	s.dispatch(ErrorDismissed{})
	if err := s.api.Clear(ctx); err != nil {
		s.dispatch(ErrorRaised{Err: errorText(err, "Failed to clear chat")})
		return err
	}
	s.dispatch(HistoryCleared{})
	s.LoadStats(ctx)
	return nil
}

// LoadStats refreshes the aggregate snapshot. Failures are logged only.
func (s *Store) LoadStats(ctx context.Context) {
	stats, err := s.api.Stats(ctx)
	if err != nil {
		s.log.Warn("Failed to load chat stats", "error", err.Error())
		return
	}
	s.dispatch(StatsLoaded{Stats: *stats})
}

// CheckHealth refreshes the provider status. Failures are logged only.
func (s *Store) CheckHealth(ctx context.Context) {
	h, err := s.api.Health(ctx)
	if err != nil {
		s.log.Warn("Failed to check AI health", "error", err.Error())
		return
	}
	s.dispatch(HealthLoaded{Health: *h})
}

// Login signs in and loads the conversation
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.dispatch(ErrorDismissed{})
	user, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.dispatch(ErrorRaised{Err: errorText(err, "Login failed")})
		return err
	}
	return s.signedIn(ctx, user)
}

// Register creates an account and loads its empty conversation
func (s *Store) Register(ctx context.Context, req models.RegisterRequest) error {
	s.dispatch(ErrorDismissed{})
	user, err := s.api.Register(ctx, req)
	if err != nil {
		s.dispatch(ErrorRaised{Err: errorText(err, "Registration failed")})
		return err
	}
	return s.signedIn(ctx, user)
}

// RestoreSession resolves the saved session, clearing the user when the
// server no longer accepts it.
func (s *Store) RestoreSession(ctx context.Context) error {
	user, err := s.api.Me(ctx)
	if err != nil {
		s.dispatch(UserChanged{User: nil})
		return err
	}
	return s.signedIn(ctx, user)
}

func (s *Store) signedIn(ctx context.Context, user *models.UserResponse) error {
	s.dispatch(UserChanged{User: user})
	if len(s.State().Messages) > 0 {
		return nil
	}
	err := s.LoadHistory(ctx)
	s.LoadStats(ctx)
	s.CheckHealth(ctx)
	return err
}

// Logout ends the session. Local state is cleared even when the server
// call fails.
func (s *Store) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	if err != nil {
		s.log.Warn("Logout request failed", "error", err.Error())
	}
	s.dispatch(UserChanged{User: nil})
	return err
}

// DismissError hides the visible error
func (s *Store) DismissError() {
	s.dispatch(ErrorDismissed{})
}

// Close stops pending timers; later events are ignored
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for seq, t := range s.timers {
		t.Stop()
		delete(s.timers, seq)
	}
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func errorText(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
