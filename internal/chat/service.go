package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/suPer8Hu/kairos/internal/actions"
	"github.com/suPer8Hu/kairos/internal/ai"
	"github.com/suPer8Hu/kairos/internal/common"
	"github.com/suPer8Hu/kairos/internal/dispatch"
	"github.com/suPer8Hu/kairos/internal/intent"
	"github.com/suPer8Hu/kairos/internal/quota"
	"gorm.io/gorm"
)

var ErrEmptyMessage = errors.New("message is empty")

const maxMessageRunes = 4000

type Service struct {
	repo              *Repo
	router            *dispatch.Router
	quotas            *quota.Manager
	recorder          *actions.Recorder
	classifier        *intent.Classifier
	contextWindowSize int
}

// NewService wires the send pipeline. recorder may be nil, in which case
// action intents are classified but nothing is written.
func NewService(repo *Repo, router *dispatch.Router, quotas *quota.Manager, recorder *actions.Recorder, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	return &Service{
		repo:              repo,
		router:            router,
		quotas:            quotas,
		recorder:          recorder,
		classifier:        intent.Default(),
		contextWindowSize: contextWindowSize,
	}
}

// Sanitize trims the text, drops control characters other than newline and
// tab, and caps it at 4000 runes.
func Sanitize(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if n == maxMessageRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

func (s *Service) CreateSession(ctx context.Context, userID uint64, organizationID *string, mode ai.Mode) (*Session, error) {
	if mode == "" {
		mode = ai.ModeGeneral
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode: %q", mode)
	}

	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	// A new session has used nothing, so only a mode with no limit is refused.
	if mode.Metered() && s.quotas.Limit(mode) <= 0 {
		return nil, fmt.Errorf("%w for %s", quota.ErrQuotaExceeded, mode)
	}

	if organizationID != nil && strings.TrimSpace(*organizationID) == "" {
		organizationID = nil
	}
	session := &Session{
		SessionID:      sid,
		UserID:         userID,
		OrganizationID: organizationID,
		Mode:           string(mode),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) ownedSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return sess, nil
}

func (s *Service) ValidateSessionOwner(ctx context.Context, userID uint64, sessionID string) error {
	_, err := s.ownedSession(ctx, userID, sessionID)
	return err
}

type SendInput struct {
	UserID    uint64
	SessionID string
	Content   string
	ImageURL  string
	// Token is the caller's bearer credential, forwarded to providers.
	Token string
}

type Reply struct {
	UserMessage      *Message             `json:"user_message"`
	AssistantMessage *Message             `json:"assistant_message"`
	Intent           intent.ActionIntent  `json:"intent"`
	Action           *actions.Record      `json:"action,omitempty"`
	Route            dispatch.RouteResult `json:"route"`
}

// SendMessage stores the user message, records the action it asks for (if
// any), routes it to the session's mode and stores the answer. When even the
// general provider fails the user message stays stored and the error wraps
// dispatch.ErrGeneralUnavailable.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*Reply, error) {
	content := Sanitize(in.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := s.ownedSession(ctx, in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}

	act := s.classifier.Classify(content)

	userMsg := &Message{
		SessionID: sess.SessionID,
		UserID:    in.UserID,
		Role:      RoleUser,
		Content:   content,
		Intent:    string(act.Kind),
	}
	if u := strings.TrimSpace(in.ImageURL); u != "" {
		userMsg.ImageURL = &u
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	reply := &Reply{UserMessage: userMsg, Intent: act}

	if act.Kind.Action() && s.recorder != nil {
		rec, err := s.recorder.Record(ctx, actions.Scope{UserID: in.UserID, OrganizationID: sess.OrganizationID}, act, content)
		if err != nil {
			log.Printf("[chat] record action failed session=%s intent=%s err=%v", sess.SessionID, act.Kind, err)
		}
		reply.Action = rec
	}

	convContext, err := s.buildContext(ctx, in.UserID, sess.SessionID, userMsg.ID, reply)
	if err != nil {
		return nil, err
	}

	mode := ai.Mode(sess.Mode)
	if !mode.Valid() {
		mode = ai.ModeGeneral
	}
	res, err := s.router.RouteMessage(ctx, mode, content, convContext,
		dispatch.Session{ID: sess.SessionID, Token: in.Token}, s.quotas.Hooks(sess.SessionID))
	if err != nil {
		return nil, err
	}
	reply.Route = res
	if res.FellBackToGeneral {
		log.Printf("[chat] fallback session=%s mode=%s reason=%q", sess.SessionID, mode, res.FallbackReason)
	}

	source := string(res.Source)
	assistantMsg := &Message{
		SessionID: sess.SessionID,
		UserID:    in.UserID,
		Role:      RoleAssistant,
		Content:   res.Content,
		Source:    &source,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	reply.AssistantMessage = assistantMsg
	return reply, nil
}

// buildContext renders the history before beforeID oldest first, one
// "role: content" line per message, plus a line for a recorded action.
func (s *Service) buildContext(ctx context.Context, userID uint64, sessionID string, beforeID uint64, reply *Reply) (string, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, userID, sessionID, s.contextWindowSize, beforeID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	switch {
	case reply.Action != nil:
		fmt.Fprintf(&b, "system: %s\n", reply.Action.Summary)
	case reply.Intent.Kind.Action() && s.recorder != nil:
		fmt.Fprintf(&b, "system: saving the %s failed; ask the user to try again.\n", reply.Intent.Kind)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, userID, sessionID, limit, beforeID)
}

// SetMode toggles the session's mode; see quota.Manager.Toggle.
func (s *Service) SetMode(ctx context.Context, userID uint64, sessionID string, mode ai.Mode) error {
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.quotas.Toggle(ctx, sessionID, mode)
}

type SessionState struct {
	SessionID string          `json:"session_id"`
	Mode      ai.Mode         `json:"mode"`
	Quotas    []quota.Counter `json:"quotas"`
}

func (s *Service) State(ctx context.Context, userID uint64, sessionID string) (*SessionState, error) {
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	mode, err := s.quotas.ActiveMode(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	counters, err := s.quotas.Usage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionState{SessionID: sessionID, Mode: mode, Quotas: counters}, nil
}

// Classify runs the classifier on sanitized text without side effects.
func (s *Service) Classify(text string) intent.ActionIntent {
	return s.classifier.Classify(Sanitize(text))
}
