// Package assistant implements the job handler for the console assistant
// agent. The assistant joins rooms as a regular participant, greets the
// first visitor, answers questions from the FAQ knowledge base over the
// chat data channel, and records sales leads submitted by the front-end.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/zap"

	"github.com/voicedesk/agent-console/internal/faq"
	"github.com/voicedesk/agent-console/internal/leads"
	"github.com/voicedesk/agent-console/pkg/agent"
	"github.com/voicedesk/agent-console/pkg/appconfig"
)

const (
	// ChatTopic carries user chat messages and assistant replies.
	ChatTopic = "lk.chat"

	// LeadTopic carries lead form submissions from the front-end.
	LeadTopic = "lk.lead"

	// saveFailedReply is sent when a lead submission cannot be persisted.
	saveFailedReply = "I could not save the lead right now. Please try again in a moment."

	participantWaitTimeout = 2 * time.Minute
)

// ChatMessage is the payload exchanged on the chat topic. The shape matches
// what the web front-end sends and renders.
type ChatMessage struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Usage counts what the assistant did across all jobs of a worker's lifetime.
type Usage struct {
	JobsServed   int
	ChatMessages int
	FAQMatches   int
	LeadsSaved   int
	LeadsFailed  int
}

// publisher is the slice of JobContext the assistant needs to send replies.
type publisher interface {
	PublishData(topic string, payload []byte, destinationIdentities ...string) error
}

type session struct {
	jobID string
	pub   publisher
}

// Handler answers room jobs for the console assistant. It implements
// agent.JobHandler and agent.RoomCallbackProvider.
type Handler struct {
	record appconfig.Config
	faq    *faq.Store
	leads  *leads.Store
	logger *zap.Logger

	mu      sync.Mutex
	current *session
	usage   Usage
}

// New creates a Handler serving the given configuration record.
// The FAQ store answers chat questions and the lead store persists
// submitted lead forms.
func New(record appconfig.Config, faqStore *faq.Store, leadStore *leads.Store, logger *zap.Logger) *Handler {
	return &Handler{
		record: record,
		faq:    faqStore,
		leads:  leadStore,
		logger: logger,
	}
}

// OnJobRequest accepts room jobs and declines everything else. The assistant
// joins under a per-job identity so concurrent rooms never collide.
func (h *Handler) OnJobRequest(ctx context.Context, job *livekit.Job) (bool, *agent.JobMetadata) {
	if job.Type != livekit.JobType_JT_ROOM {
		h.logger.Info("declining non-room job", zap.String("job_id", job.Id), zap.String("type", job.Type.String()))
		return false, nil
	}

	return true, &agent.JobMetadata{
		ParticipantIdentity: "assistant-" + job.Id,
		ParticipantName:     h.record.CompanyName + " Assistant",
		ParticipantAttributes: map[string]string{
			"role": "assistant",
		},
	}
}

// OnJobAssigned runs the assistant session. It greets the first participant
// and then serves data-channel traffic until the job context is cancelled.
func (h *Handler) OnJobAssigned(ctx context.Context, job *livekit.Job, room *lksdk.Room) error {
	jc := agent.NewJobContext(ctx, job, room)

	sess := &session{jobID: job.Id, pub: jc}
	h.mu.Lock()
	h.current = sess
	h.usage.JobsServed++
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.current == sess {
			h.current = nil
		}
		h.mu.Unlock()
	}()

	roomName := ""
	if job.Room != nil {
		roomName = job.Room.Name
	}
	h.logger.Info("assistant session started",
		zap.String("job_id", job.Id),
		zap.String("room", roomName))

	if p, err := jc.WaitForAnyParticipant(participantWaitTimeout); err != nil {
		h.logger.Warn("no participant joined", zap.String("job_id", job.Id), zap.Error(err))
	} else {
		h.greet(sess, p.Identity())
	}

	<-ctx.Done()

	h.logger.Info("assistant session ended", zap.String("job_id", job.Id))
	return nil
}

// OnJobTerminated is called after the server tears the job down.
func (h *Handler) OnJobTerminated(ctx context.Context, jobID string) {
	h.logger.Info("assistant job terminated", zap.String("job_id", jobID))
}

// GetRoomCallbacks wires the data channel into the assistant. Chat messages
// and lead submissions arrive as user data packets on their topics.
func (h *Handler) GetRoomCallbacks() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		OnParticipantConnected: func(participant *lksdk.RemoteParticipant) {
			h.logger.Info("participant connected", zap.String("identity", participant.Identity()))
		},
		OnParticipantDisconnected: func(participant *lksdk.RemoteParticipant) {
			h.logger.Info("participant disconnected", zap.String("identity", participant.Identity()))
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				packet, ok := data.(*lksdk.UserDataPacket)
				if !ok {
					return
				}
				h.handlePacket(packet.Topic, packet.Payload, params.SenderIdentity)
			},
		},
	}
}

// handlePacket routes an incoming data packet by topic.
func (h *Handler) handlePacket(topic string, payload []byte, senderIdentity string) {
	h.mu.Lock()
	sess := h.current
	h.mu.Unlock()

	if sess == nil {
		h.logger.Debug("dropping packet without active session", zap.String("topic", topic))
		return
	}

	switch topic {
	case ChatTopic:
		h.handleChat(sess, payload, senderIdentity)
	case LeadTopic:
		h.handleLead(sess, payload, senderIdentity)
	default:
		h.logger.Debug("ignoring packet on unknown topic", zap.String("topic", topic))
	}
}

func (h *Handler) handleChat(sess *session, payload []byte, senderIdentity string) {
	var msg ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Warn("malformed chat message", zap.Error(err))
		return
	}
	if msg.Message == "" {
		return
	}

	result := h.faq.Lookup(msg.Message)

	h.mu.Lock()
	h.usage.ChatMessages++
	if result.Matched {
		h.usage.FAQMatches++
	}
	h.mu.Unlock()

	h.reply(sess, result.Answer, senderIdentity)
}

func (h *Handler) handleLead(sess *session, payload []byte, senderIdentity string) {
	var lead leads.Lead
	if err := json.Unmarshal(payload, &lead); err != nil {
		h.logger.Warn("malformed lead submission", zap.Error(err))
		h.countLeadFailure()
		h.reply(sess, saveFailedReply, senderIdentity)
		return
	}

	if err := h.leads.Save(lead); err != nil {
		h.logger.Error("failed to save lead", zap.Error(err))
		h.countLeadFailure()
		h.reply(sess, saveFailedReply, senderIdentity)
		return
	}

	h.mu.Lock()
	h.usage.LeadsSaved++
	h.mu.Unlock()

	h.reply(sess, leads.SavedMessage, senderIdentity)
}

func (h *Handler) countLeadFailure() {
	h.mu.Lock()
	h.usage.LeadsFailed++
	h.mu.Unlock()
}

func (h *Handler) greet(sess *session, identity string) {
	greeting := fmt.Sprintf("Hello! You are speaking with the %s assistant. How can I help you today?", h.record.CompanyName)
	h.reply(sess, greeting, identity)
}

// reply publishes a chat message. When a sender identity is known, the
// reply is targeted at that participant only.
func (h *Handler) reply(sess *session, text, senderIdentity string) {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		Message:   text,
		Timestamp: time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode reply", zap.Error(err))
		return
	}

	var dests []string
	if senderIdentity != "" {
		dests = []string{senderIdentity}
	}

	if err := sess.pub.PublishData(ChatTopic, payload, dests...); err != nil {
		h.logger.Error("failed to publish reply", zap.String("job_id", sess.jobID), zap.Error(err))
	}
}

// Usage returns a snapshot of the assistant's counters.
func (h *Handler) Usage() Usage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usage
}

// LogUsage writes the usage summary. Called once at worker shutdown.
func (h *Handler) LogUsage() {
	u := h.Usage()
	h.logger.Info("assistant usage summary",
		zap.Int("jobs_served", u.JobsServed),
		zap.Int("chat_messages", u.ChatMessages),
		zap.Int("faq_matches", u.FAQMatches),
		zap.Int("leads_saved", u.LeadsSaved),
		zap.Int("leads_failed", u.LeadsFailed))
}
