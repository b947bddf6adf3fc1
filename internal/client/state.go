// Package client is the conversation store used by terminal clients: a pure
// reducer over State plus a Store that performs the API calls.
package client

import (
	"ai-chat-app/backend/internal/models"
)

// TempIDPrefix marks identifiers of optimistic messages
const TempIDPrefix = "temp-"

// Message is a conversation entry as the client sees it. Confirmed messages
// carry the server's ExternalID; optimistic ones only a LocalID.
type Message struct {
	models.Message
	LocalID string
	Pending bool
	Failed  bool
	Retry   bool
}

// Key identifies the message within the client's list
func (m Message) Key() string {
	if m.ExternalID != "" {
		return m.ExternalID
	}
	return m.LocalID
}

// Confirmed reports whether the server has persisted the message
func (m Message) Confirmed() bool {
	return m.ExternalID != ""
}

func confirmed(msgs []models.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Message: m}
	}
	return out
}

// State is everything the UI renders
type State struct {
	User              *models.UserResponse
	Messages          []Message
	Draft             string
	HasMore           bool
	IsLoadingMessages bool
	Sending           int
	Error             string
	ErrorSeq          uint64
	Stats             *models.ChatMetadata
	AIHealth          *models.AIHealth
}

// IsAuthenticated reports whether a user is signed in
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// IsSendingMessage is true while any send is in flight
func (s State) IsSendingMessage() bool {
	return s.Sending > 0
}

// ConfirmedCount is the number of server-persisted messages loaded; it is
// the offset of the next older page.
func (s State) ConfirmedCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Confirmed() {
			n++
		}
	}
	return n
}

// Find returns the message with the given key
func (s State) Find(key string) (Message, bool) {
	for _, m := range s.Messages {
		if m.Key() == key {
			return m, true
		}
	}
	return Message{}, false
}

// Event is an input to Reduce
type Event interface {
	event()
}

type (
	// DraftChanged replaces the compose text
	DraftChanged struct{ Text string }

	// SendStarted appends the optimistic message and clears the draft
	SendStarted struct{ Temp Message }

	// SendSucceeded swaps the optimistic message for the persisted pair
	SendSucceeded struct {
		TempID string
		User   models.Message
		AI     models.Message
	}

	// SendFailed marks the optimistic message failed and restores the draft
	SendFailed struct {
		TempID  string
		Content string
		Err     string
	}

	// HistoryStarted begins a fresh load of the newest window
	HistoryStarted struct{}

	// HistoryLoaded replaces the loaded window
	HistoryLoaded struct {
		Messages []models.Message
		HasMore  bool
	}

	// MoreStarted begins loading an older page
	MoreStarted struct{}

	// MoreLoaded prepends an older page
	MoreLoaded struct {
		Messages []models.Message
		HasMore  bool
	}

	// LoadFailed ends a history load with an error
	LoadFailed struct{ Err string }

	// HistoryCleared empties the conversation
	HistoryCleared struct{}

	// StatsLoaded stores the aggregate snapshot
	StatsLoaded struct{ Stats models.ChatMetadata }

	// HealthLoaded stores the provider status
	HealthLoaded struct{ Health models.AIHealth }

	// UserChanged sets or clears the signed-in user
	UserChanged struct{ User *models.UserResponse }

	// ErrorRaised shows an error, replacing any visible one
	ErrorRaised struct{ Err string }

	// ErrorExpired clears the error raised with Seq, if still visible
	ErrorExpired struct{ Seq uint64 }

	// ErrorDismissed clears whatever error is visible
	ErrorDismissed struct{}
)

func (DraftChanged) event()   {}
func (SendStarted) event()    {}
func (SendSucceeded) event()  {}
func (SendFailed) event()     {}
func (HistoryStarted) event() {}
func (HistoryLoaded) event()  {}
func (MoreStarted) event()    {}
func (MoreLoaded) event()     {}
func (LoadFailed) event()     {}
func (HistoryCleared) event() {}
func (StatsLoaded) event()    {}
func (HealthLoaded) event()   {}
func (UserChanged) event()    {}
func (ErrorRaised) event()    {}
func (ErrorExpired) event()   {}
func (ErrorDismissed) event() {}

func (s State) withError(msg string) State {
	s.Error = msg
	s.ErrorSeq++
	return s
}

func (s State) clearError() State {
	s.Error = ""
	return s
}

// Reduce returns the state after applying e. It never mutates s.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case DraftChanged:
		s.Draft = e.Text

	case SendStarted:
		temp := e.Temp
		temp.Pending = true
		temp.Failed = false
		s.Messages = appendCopy(s.Messages, temp)
		s.Draft = ""
		s.Sending++
		s = s.clearError()

	case SendSucceeded:
		msgs := make([]Message, 0, len(s.Messages)+2)
		for _, m := range s.Messages {
			if !m.Confirmed() && m.LocalID == e.TempID {
				continue
			}
			msgs = append(msgs, m)
		}
		s.Messages = append(msgs, Message{Message: e.User}, Message{Message: e.AI})
		s.Sending = decrement(s.Sending)

	case SendFailed:
		msgs := make([]Message, len(s.Messages))
		copy(msgs, s.Messages)
		for i, m := range msgs {
			if !m.Confirmed() && m.LocalID == e.TempID {
				msgs[i].Pending = false
				msgs[i].Failed = true
			}
		}
		s.Messages = msgs
		s.Draft = e.Content
		s.Sending = decrement(s.Sending)
		s = s.withError(e.Err)

	case HistoryStarted:
		s.IsLoadingMessages = true
		s = s.clearError()

	case HistoryLoaded:
		// optimistic messages survive a refresh so their sends can still resolve
		msgs := confirmed(e.Messages)
		for _, m := range s.Messages {
			if !m.Confirmed() {
				msgs = append(msgs, m)
			}
		}
		s.Messages = msgs
		s.HasMore = e.HasMore
		s.IsLoadingMessages = false

	case MoreStarted:
		s.IsLoadingMessages = true
		s = s.clearError()

	case MoreLoaded:
		s.Messages = append(confirmed(e.Messages), s.Messages...)
		s.HasMore = e.HasMore
		s.IsLoadingMessages = false

	case LoadFailed:
		s.IsLoadingMessages = false
		s = s.withError(e.Err)

	case HistoryCleared:
		s.Messages = nil
		s.HasMore = false

	case StatsLoaded:
		stats := e.Stats
		s.Stats = &stats

	case HealthLoaded:
		h := e.Health
		s.AIHealth = &h

	case UserChanged:
		s.User = e.User
		if e.User == nil {
			s.Messages = nil
			s.HasMore = false
			s.Stats = nil
			s.AIHealth = nil
			s.Draft = ""
		}

	case ErrorRaised:
		s = s.withError(e.Err)

	case ErrorExpired:
		if s.ErrorSeq == e.Seq {
			s = s.clearError()
		}

	case ErrorDismissed:
		s = s.clearError()
	}
	return s
}

func appendCopy(msgs []Message, m Message) []Message {
	out := make([]Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, m)
}

func decrement(n int) int {
	if n > 0 {
		return n - 1
	}
	return 0
}
