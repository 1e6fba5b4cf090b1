package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// SimpleJobHandler provides a function-based way to handle jobs without
// implementing the full JobHandler interface. This is useful for quick
// prototyping or simple agents.
type SimpleJobHandler struct {
	// OnJob is called when a job is assigned
	OnJob func(ctx context.Context, job *livekit.Job, room *lksdk.Room) error

	// Metadata provides participant information for the agent
	Metadata func(job *livekit.Job) *JobMetadata

	// OnTerminated is called when a job is terminated (optional)
	OnTerminated func(jobID string)
}

// OnJobRequest implements the JobHandler interface by providing automatic metadata
// generation based on job type. If a custom Metadata function is provided, it will
// be used instead. Always returns true (accepts all jobs).
func (h *SimpleJobHandler) OnJobRequest(ctx context.Context, job *livekit.Job) (bool, *JobMetadata) {
	if h.Metadata != nil {
		return true, h.Metadata(job)
	}

	// Default metadata
	identity := fmt.Sprintf("agent-%s", job.Id)
	name := "Agent"

	switch job.Type {
	case livekit.JobType_JT_ROOM:
		name = "Room Agent"
	case livekit.JobType_JT_PUBLISHER:
		name = "Publisher Agent"
		if job.Participant != nil {
			identity = fmt.Sprintf("agent-pub-%s", job.Participant.Identity)
		}
	case livekit.JobType_JT_PARTICIPANT:
		name = "Participant Agent"
		if job.Participant != nil {
			identity = fmt.Sprintf("agent-part-%s", job.Participant.Identity)
		}
	}

	return true, &JobMetadata{
		ParticipantIdentity: identity,
		ParticipantName:     name,
	}
}

// OnJobAssigned implements the JobHandler interface by delegating to the OnJob function
// if provided. Returns nil if no OnJob function is set.
func (h *SimpleJobHandler) OnJobAssigned(ctx context.Context, job *livekit.Job, room *lksdk.Room) error {
	if h.OnJob != nil {
		return h.OnJob(ctx, job, room)
	}
	return nil
}

// OnJobTerminated implements the JobHandler interface by delegating to the OnTerminated
// function if provided. Does nothing if no OnTerminated function is set.
func (h *SimpleJobHandler) OnJobTerminated(ctx context.Context, jobID string) {
	if h.OnTerminated != nil {
		h.OnTerminated(jobID)
	}
}

// JobContext wraps a job execution context with utility methods for common
// operations like waiting for participants and publishing data packets.
// This simplifies job handler implementations.
type JobContext struct {
	Job  *livekit.Job
	Room *lksdk.Room
	ctx  context.Context
}

// NewJobContext creates a new job context wrapper with the provided context, job, and room.
// This is typically called at the beginning of a job handler.
func NewJobContext(ctx context.Context, job *livekit.Job, room *lksdk.Room) *JobContext {
	return &JobContext{
		Job:  job,
		Room: room,
		ctx:  ctx,
	}
}

// Context returns the underlying context for the job execution.
func (jc *JobContext) Context() context.Context {
	return jc.ctx
}

// Done returns a channel that's closed when the job should stop execution.
// This is equivalent to jc.Context().Done().
func (jc *JobContext) Done() <-chan struct{} {
	return jc.ctx.Done()
}

// Sleep pauses execution for the specified duration or until the job is cancelled.
// Returns an error if the job context is cancelled during the sleep.
func (jc *JobContext) Sleep(d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-jc.ctx.Done():
		return jc.ctx.Err()
	}
}

// GetTargetParticipant returns the target participant for publisher/participant jobs.
// Returns nil if the job doesn't have a target participant or if the participant
// is not currently in the room.
func (jc *JobContext) GetTargetParticipant() *lksdk.RemoteParticipant {
	if jc.Job.Participant == nil {
		return nil
	}

	for _, p := range jc.Room.GetRemoteParticipants() {
		if p.Identity() == jc.Job.Participant.Identity {
			return p
		}
	}

	return nil
}

// WaitForParticipant waits for a participant with the specified identity to join the room.
// It polls every 100ms until the participant joins or the timeout is reached.
// Returns an error if the timeout is exceeded or the job context is cancelled.
func (jc *JobContext) WaitForParticipant(identity string, timeout time.Duration) (*lksdk.RemoteParticipant, error) {
	deadline := time.Now().Add(timeout)

	for {
		for _, p := range jc.Room.GetRemoteParticipants() {
			if p.Identity() == identity {
				return p, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for participant %s", identity)
		}

		if err := jc.Sleep(100 * time.Millisecond); err != nil {
			return nil, err
		}
	}
}

// WaitForAnyParticipant waits for the first remote participant to join the room.
// Returns an error if the timeout is exceeded or the job context is cancelled.
func (jc *JobContext) WaitForAnyParticipant(timeout time.Duration) (*lksdk.RemoteParticipant, error) {
	deadline := time.Now().Add(timeout)

	for {
		if participants := jc.Room.GetRemoteParticipants(); len(participants) > 0 {
			return participants[0], nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for a participant")
		}

		if err := jc.Sleep(100 * time.Millisecond); err != nil {
			return nil, err
		}
	}
}

// PublishData publishes a data packet to the room on the given topic.
// If destinationIdentities is provided, the data is sent only to those
// participants, otherwise it goes to everyone in the room. Reliable
// delivery is used so messages survive brief network hiccups.
func (jc *JobContext) PublishData(topic string, payload []byte, destinationIdentities ...string) error {
	packet := &lksdk.UserDataPacket{
		Payload: payload,
		Topic:   topic,
	}

	opts := []lksdk.DataPublishOption{lksdk.WithDataPublishReliable(true)}
	if len(destinationIdentities) > 0 {
		opts = append(opts, lksdk.WithDataPublishDestination(destinationIdentities))
	}

	return jc.Room.LocalParticipant.PublishDataPacket(packet, opts...)
}
