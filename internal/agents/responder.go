// Package agents runs scripted conversation participants that answer
// messages addressed to them after a short, human-like pause.
package agents

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

// Store is the persistence the responder needs.
type Store interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	Participants(ctx context.Context, conversationID string) ([]models.User, error)
}

// Publisher delivers server-originated messages and typing indicators.
type Publisher interface {
	Publish(msg models.Message, recipients []models.User)
	BroadcastTyping(ev protocol.TypingUser, excludeConn string)
}

// Receipts records delivery receipts on a participant's behalf.
type Receipts interface {
	Record(ctx context.Context, rep protocol.ReceiptReport, originConn string) error
}

// Config controls reply pacing.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Responder answers messages sent to scripted participants. Replies run
// off the relay path and are cancelled by Close.
type Responder struct {
	store     Store
	publisher Publisher
	receipts  Receipts
	log       zerolog.Logger
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewResponder creates a responder. Attach it with relay.Observe.
func NewResponder(store Store, publisher Publisher, receipts Receipts, logger zerolog.Logger, cfg Config) *Responder {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Responder{
		store:     store,
		publisher: publisher,
		receipts:  receipts,
		log:       logger.With().Str("component", "agents").Logger(),
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// MessageRelayed schedules a reply from every scripted recipient.
func (r *Responder) MessageRelayed(msg models.Message, recipients []models.User) {
	agents := lo.Filter(recipients, func(u models.User, _ int) bool { return u.IsAgent })
	if len(agents) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, agent := range agents {
		r.wg.Add(1)
		go r.reply(msg, agent)
	}
}

// Close cancels pending replies and waits for them to finish.
func (r *Responder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Responder) reply(msg models.Message, agent models.User) {
	defer r.wg.Done()
	ctx := r.ctx
	log := r.log.With().Str("agent_id", agent.ID).Str("conversation_id", msg.ConversationID).Logger()

	participants, err := r.store.Participants(ctx, msg.ConversationID)
	if err != nil {
		log.Warn().Err(err).Msg("participants lookup failed")
		return
	}
	sender, ok := lo.Find(participants, func(u models.User) bool { return u.ID == msg.SenderID })
	if !ok || sender.IsAgent {
		return
	}

	r.acknowledge(ctx, msg, agent.ID, models.StatusDelivered)
	r.acknowledge(ctx, msg, agent.ID, models.StatusSeen)

	typing := protocol.TypingUser{ConversationID: msg.ConversationID, UserID: agent.ID, UserName: agent.Name, IsTyping: true}
	r.publisher.BroadcastTyping(typing, "")
	typing.IsTyping = false
	defer r.publisher.BroadcastTyping(typing, "")

	timer := time.NewTimer(r.delay())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	answer := &models.Message{
		ConversationID: msg.ConversationID,
		SenderID:       agent.ID,
		Content:        Reply(agent.Name, msg.Content),
	}
	if err := r.store.CreateMessage(ctx, answer); err != nil {
		log.Error().Err(err).Msg("reply not persisted")
		return
	}

	recipients := lo.Filter(participants, func(u models.User, _ int) bool { return u.ID != agent.ID })
	r.publisher.Publish(*answer, recipients)
	metrics.AgentReplies.Inc()
	log.Debug().Str("message_id", answer.ID).Msg("agent replied")
}

func (r *Responder) acknowledge(ctx context.Context, msg models.Message, agentID string, event models.Status) {
	err := r.receipts.Record(ctx, protocol.ReceiptReport{
		ConversationID: msg.ConversationID,
		MessageIDs:     []string{msg.ID},
		UserID:         agentID,
		Event:          event,
	}, "")
	if err != nil {
		r.log.Warn().Err(err).Str("agent_id", agentID).Str("message_id", msg.ID).Msg("receipt not recorded")
	}
}

func (r *Responder) delay() time.Duration {
	spread := r.cfg.MaxDelay - r.cfg.MinDelay
	if spread <= 0 {
		return r.cfg.MinDelay
	}
	return r.cfg.MinDelay + time.Duration(rand.Int64N(int64(spread)))
}
