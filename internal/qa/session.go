// Package qa ties the answer cache and the conversation store into the
// question/answer flow for one dataset.
package qa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/financial_qa/internal/cache"
	"github.com/lewisedginton/financial_qa/internal/conversation"
	"github.com/lewisedginton/financial_qa/pkg/logger"
)

const (
	newConversationTitle = "New Conversation"
	followUpCount        = 3
)

// Session answers questions about one dataset. It is immutable after
// NewSession and safe for concurrent use.
type Session struct {
	cache     *cache.Manager
	store     *conversation.Store
	datasetID string
	answerer  Answerer
	now       func() time.Time
	log       logger.Logger
}

// Option configures a Session.
type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// NewSession builds a session.
func NewSession(c *cache.Manager, store *conversation.Store, datasetID string, a Answerer, opts ...Option) (*Session, error) {
	if c == nil || store == nil || a == nil {
		return nil, fmt.Errorf("cache, store and answerer are required")
	}
	if datasetID == "" {
		return nil, fmt.Errorf("dataset id is required")
	}
	s := &Session{
		cache:     c,
		store:     store,
		datasetID: datasetID,
		answerer:  a,
		now:       time.Now,
		log:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logger.StringField("dataset_id", datasetID))
	return s, nil
}

func (s *Session) DatasetID() string { return s.datasetID }

// Reply is the outcome of Ask.
type Reply struct {
	ConversationID string
	Message        conversation.Message
	FromCache      bool
	FollowUps      []string
}

type cachedAnswer struct {
	Answer         string         `json:"answer"`
	ProcessingTime float64        `json:"processing_time"`
	ChartData      map[string]any `json:"chart_data"`
}

func (s *Session) answerKey(question string) string {
	return fmt.Sprintf("qa_%s_%s", s.datasetID, cache.DeriveKey(question))
}

func (s *Session) statsKey() string {
	return "stats_" + s.datasetID
}

// Ask records question in conversationID (a new conversation when empty),
// answers it from the cache or the answerer, and records the answer.
func (s *Session) Ask(ctx context.Context, question, conversationID string) (*Reply, error) {
	id, err := s.openConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logger.StringField("conversation_id", id))

	if _, err := s.store.AppendMessage(ctx, id, conversation.NewMessage{Role: conversation.RoleUser, Content: question}); err != nil && !errors.Is(err, conversation.ErrIndexWrite) {
		return nil, fmt.Errorf("record question: %w", err)
	}

	key := s.answerKey(question)
	var ans cachedAnswer
	hit, err := s.cache.GetInto(ctx, key, &ans)
	if err != nil {
		log.Warn("Ignoring unusable cached answer", logger.StringField("key", key), logger.ErrorField(err))
	}
	if !hit {
		start := s.now()
		out, err := s.answerer.Answer(ctx, Request{DatasetID: s.datasetID, Question: question})
		if err != nil {
			log.Error("Answerer failed", logger.ErrorField(err))
			_, appendErr := s.store.AppendMessage(ctx, id, conversation.NewMessage{
				Role:    conversation.RoleSystem,
				Content: fmt.Sprintf("Error processing question: %v", err),
			})
			if appendErr != nil && !errors.Is(appendErr, conversation.ErrIndexWrite) {
				log.Error("Failed to record answerer error", logger.ErrorField(appendErr))
			}
			return nil, fmt.Errorf("answer question: %w", err)
		}
		ans = cachedAnswer{
			Answer:         out.Text,
			ProcessingTime: s.now().Sub(start).Seconds(),
			ChartData:      out.ChartData,
		}
		if err := s.cache.Set(ctx, key, ans); err != nil {
			log.Warn("Answer not cached", logger.StringField("key", key), logger.ErrorField(err))
		}
	}

	pt := ans.ProcessingTime
	msg, err := s.store.AppendMessage(ctx, id, conversation.NewMessage{
		Role:           conversation.RoleAssistant,
		Content:        ans.Answer,
		ProcessingTime: &pt,
		ChartData:      ans.ChartData,
	})
	if err != nil && !errors.Is(err, conversation.ErrIndexWrite) {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	followUps, err := s.store.SuggestFollowUps(ctx, id, followUpCount)
	if err != nil {
		return nil, err
	}
	log.Info("Question answered",
		logger.BoolField("cached", hit),
		logger.FloatField("processing_time", pt))
	return &Reply{ConversationID: id, Message: msg, FromCache: hit, FollowUps: followUps}, nil
}

func (s *Session) openConversation(ctx context.Context, id string) (string, error) {
	if id == "" {
		id, err := s.store.Create(ctx, newConversationTitle, s.datasetID)
		if err != nil && !errors.Is(err, conversation.ErrIndexWrite) {
			return "", fmt.Errorf("create conversation: %w", err)
		}
		return id, nil
	}
	ok, err := s.store.SetCurrent(ctx, id)
	if err != nil && !errors.Is(err, conversation.ErrIndexWrite) {
		return "", err
	}
	if !ok && err == nil {
		return "", fmt.Errorf("%w: %q", conversation.ErrNotFound, id)
	}
	return id, nil
}

// StatsFunc computes dataset statistics.
type StatsFunc func(ctx context.Context) (map[string]any, error)

// Stats returns the cached dataset statistics, computing and caching them on
// a miss.
func (s *Session) Stats(ctx context.Context, compute StatsFunc) (map[string]any, error) {
	var stats map[string]any
	if hit, err := s.cache.GetInto(ctx, s.statsKey(), &stats); hit && err == nil {
		return stats, nil
	}
	stats, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, s.statsKey(), stats); err != nil {
		s.log.Warn("Stats not cached", logger.ErrorField(err))
	}
	return stats, nil
}

// Reset clears every cached entry, as loading a new dataset does.
func (s *Session) Reset(ctx context.Context) (int, error) {
	n, err := s.cache.ClearAll(ctx)
	s.log.Info("Cache reset", logger.IntField("removed", n))
	return n, err
}
