package mentor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mentora/internal/credstore"
	"mentora/internal/history"
	"mentora/internal/llm"
	"mentora/internal/models"
	"mentora/internal/prompt"
	"mentora/internal/redis"
	"mentora/internal/session"
	"mentora/internal/speech"
)

const (
	// historyWindow bounds how many stored turns are considered per
	// request. Older turns only reach the model through the rolling
	// summary.
	historyWindow = 40
	// recentTurns go to the model verbatim.
	recentTurns = 6
	// summaryThreshold is the turn count at which summarisation starts;
	// everything but the last summaryKeep turns is condensed.
	summaryThreshold = 10
	summaryKeep      = 5

	summaryCacheTTL = 24 * time.Hour
	speakTimeout    = 30 * time.Second
)

// Service coordinates credential checks, session resolution, history,
// prompt assembly, and the completion call. It holds no mutable state of its
// own; the stores are safe for concurrent callers.
type Service struct {
	creds    *credstore.Store
	sessions *session.Manager
	history  *history.Store
	prompts  *prompt.Assembler
	llm      llm.Completer
	speaker  speech.Speaker
	cache    *redis.Client
}

func NewService(creds *credstore.Store, sessions *session.Manager, hist *history.Store, prompts *prompt.Assembler, completer llm.Completer, speaker speech.Speaker, cache *redis.Client) *Service {
	if speaker == nil {
		speaker = speech.Noop{}
	}
	return &Service{
		creds:    creds,
		sessions: sessions,
		history:  hist,
		prompts:  prompts,
		llm:      completer,
		speaker:  speaker,
		cache:    cache,
	}
}

type ChatRequest struct {
	Username  string
	Password  string
	Message   string
	SessionID string
}

type ChatReply struct {
	Reply      string
	SessionID  string
	NewSession bool
}

// Handle processes one conversation turn: verify credentials, resolve the
// session, assemble the prompt from the stored history, call the model,
// and persist both turns. On provider failure the user turn stays recorded
// and no assistant turn is written.
func (s *Service) Handle(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}

	ok, err := s.creds.Verify(ctx, req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: verify credentials: %v", ErrStorage, err)
	}
	if !ok {
		return nil, ErrAuth
	}

	se, created, err := s.sessions.Resolve(ctx, req.Username, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve session: %v", ErrStorage, err)
	}

	turns, err := s.history.Fetch(ctx, se.ID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch history: %v", ErrStorage, err)
	}

	prefs, err := s.creds.Preferences(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: load preferences: %v", ErrStorage, err)
	}

	cc := prompt.Context{
		Role:         prefs.Role,
		LearningGoal: prefs.LearningGoal,
		Skills:       prefs.Skills,
		Difficulty:   prefs.Difficulty,
		Summary:      s.conversationSummary(ctx, se.ID, turns),
	}
	recent := turns
	if len(recent) > recentTurns {
		recent = recent[len(recent)-recentTurns:]
	}
	fullPrompt := s.prompts.BuildChat(cc, recent, req.Message)

	if _, err := s.history.Append(ctx, se.ID, models.RoleUser, req.Message); err != nil {
		return nil, fmt.Errorf("%w: append user turn: %v", ErrStorage, err)
	}

	reply, err := s.llm.Complete(ctx, fullPrompt)
	if err != nil {
		// The user turn stays; no phantom assistant turn is recorded.
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	if _, err := s.history.Append(ctx, se.ID, models.RoleAssistant, reply); err != nil {
		return nil, fmt.Errorf("%w: append assistant turn: %v", ErrStorage, err)
	}

	s.speak(reply)

	return &ChatReply{Reply: reply, SessionID: se.ID, NewSession: created}, nil
}

type StartRequest struct {
	Username     string
	Password     string
	LearningGoal string
	Skills       []string
	Difficulty   string
	Role         string
}

type StartReply struct {
	Session *models.Session
	Intro   string
	Topics  []string
}

// StartSession saves the user's mentoring preferences, mints a session, and
// opens it with a generated intro message stored as the first assistant
// turn. A provider failure degrades to a static intro rather than failing
// the start.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (*StartReply, error) {
	ok, err := s.creds.Verify(ctx, req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: verify credentials: %v", ErrStorage, err)
	}
	if !ok {
		return nil, ErrAuth
	}

	prefs := models.Preferences{
		Username:     req.Username,
		LearningGoal: req.LearningGoal,
		Skills:       req.Skills,
		Difficulty:   req.Difficulty,
		Role:         req.Role,
	}
	if err := s.creds.SavePreferences(ctx, prefs); err != nil {
		return nil, fmt.Errorf("%w: save preferences: %v", ErrStorage, err)
	}

	cc := prompt.Context{
		Role:         prefs.Role,
		LearningGoal: prefs.LearningGoal,
		Skills:       prefs.Skills,
		Difficulty:   prefs.Difficulty,
	}
	intro, topics := s.generateIntro(ctx, cc)

	se, err := s.sessions.Start(ctx, req.Username, sessionTitle(req))
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", ErrStorage, err)
	}
	if _, err := s.history.Append(ctx, se.ID, models.RoleAssistant, intro); err != nil {
		return nil, fmt.Errorf("%w: record intro: %v", ErrStorage, err)
	}

	return &StartReply{Session: se, Intro: intro, Topics: topics}, nil
}

// Sessions lists the user's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, username string) ([]models.Session, error) {
	sessions, err := s.sessions.List(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrStorage, err)
	}
	return sessions, nil
}

// History returns every turn of one of the user's sessions.
func (s *Service) History(ctx context.Context, username, sessionID string) ([]models.ChatTurn, error) {
	if _, err := s.sessions.Get(ctx, username, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get session: %v", ErrStorage, err)
	}
	turns, err := s.history.Fetch(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch history: %v", ErrStorage, err)
	}
	return turns, nil
}

// TopicPrompts suggests questions the user could ask about a topic. Provider
// failures fall back to static suggestions.
func (s *Service) TopicPrompts(ctx context.Context, username, topic string) []string {
	topic = strings.TrimSpace(topic)
	cc := prompt.Context{Role: prompt.DefaultRole}
	if username != "" {
		if prefs, err := s.creds.Preferences(ctx, username); err == nil {
			cc = prompt.Context{
				Role:         prefs.Role,
				LearningGoal: prefs.LearningGoal,
				Skills:       prefs.Skills,
				Difficulty:   prefs.Difficulty,
			}
		}
	}
	out, err := s.llm.Complete(ctx, s.prompts.TopicPrompt(topic, cc))
	if err != nil {
		log.Printf("topic prompts for %q: %v", topic, err)
		return fallbackTopicPrompts(topic)
	}
	prompts := splitLines(out)
	if len(prompts) == 0 {
		return fallbackTopicPrompts(topic)
	}
	return prompts
}

// conversationSummary returns the rolling summary for long sessions. Short
// sessions and summariser failures return whatever is cached, possibly
// nothing.
func (s *Service) conversationSummary(ctx context.Context, sessionID string, turns []models.ChatTurn) string {
	cacheKey := "mentor:summary:" + sessionID
	cached, err := s.cache.Get(ctx, cacheKey)
	if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		log.Printf("summary cache read %s: %v", sessionID, err)
	}
	if len(turns) < summaryThreshold {
		return cached
	}

	older := turns[:len(turns)-summaryKeep]
	summary, err := s.llm.Chat(ctx, s.prompts.SummaryPrompt(), older)
	if err != nil {
		log.Printf("summarize session %s: %v", sessionID, err)
		return cached
	}
	if err := s.cache.Set(ctx, cacheKey, summary, summaryCacheTTL); err != nil {
		log.Printf("summary cache write %s: %v", sessionID, err)
	}
	return summary
}

func (s *Service) generateIntro(ctx context.Context, cc prompt.Context) (string, []string) {
	const extraInstructions = "Greet the learner and set expectations for an interactive, domain-focused mentoring session."
	out, err := s.llm.Complete(ctx, s.prompts.IntroPrompt(cc, extraInstructions))
	if err != nil {
		log.Printf("generate intro: %v", err)
		return fallbackIntro, fallbackTopics()
	}
	topics := parseTopics(out)
	if len(topics) == 0 {
		topics = fallbackTopics()
	}
	return out, topics
}

// speak hands the reply to the speech collaborator without blocking the
// response; failures are logged and dropped.
func (s *Service) speak(text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
		defer cancel()
		if err := s.speaker.Speak(ctx, text); err != nil {
			log.Printf("speak reply: %v", err)
		}
	}()
}

const fallbackIntro = "Hello! I'm your mentor, ready to guide you.\n\nHere are some topics:\n- Introduction\n- Core Concepts\n- Advanced Topics\n\nShall we start?"

func fallbackTopics() []string {
	return []string{"Introduction", "Core Concepts", "Advanced Topics"}
}

func fallbackTopicPrompts(topic string) []string {
	return []string{
		fmt.Sprintf("What are the basics of %s?", topic),
		fmt.Sprintf("Can you give me a real-world example of %s?", topic),
		fmt.Sprintf("How do I apply %s in practice?", topic),
		fmt.Sprintf("What are common mistakes in %s?", topic),
	}
}

func parseTopics(intro string) []string {
	var topics []string
	for _, line := range strings.Split(intro, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "- "); ok {
			if topic := strings.TrimSpace(after); topic != "" {
				topics = append(topics, topic)
			}
		}
	}
	return topics
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func sessionTitle(req StartRequest) string {
	base := req.LearningGoal
	if base == "" && len(req.Skills) > 0 {
		base = req.Skills[0]
	}
	if base == "" {
		base = "New Session"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	title := b.String()
	if title == "" {
		title = "Session"
	}
	return title + "_" + time.Now().UTC().Format("20060102150405")
}
