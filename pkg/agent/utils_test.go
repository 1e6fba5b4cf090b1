package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleJobHandlerDefaultMetadata(t *testing.T) {
	handler := &SimpleJobHandler{}

	tests := []struct {
		name         string
		job          *livekit.Job
		wantIdentity string
		wantName     string
	}{
		{
			name:         "room job",
			job:          &livekit.Job{Id: "j1", Type: livekit.JobType_JT_ROOM},
			wantIdentity: "agent-j1",
			wantName:     "Room Agent",
		},
		{
			name: "publisher job",
			job: &livekit.Job{
				Id:          "j2",
				Type:        livekit.JobType_JT_PUBLISHER,
				Participant: &livekit.ParticipantInfo{Identity: "alice"},
			},
			wantIdentity: "agent-pub-alice",
			wantName:     "Publisher Agent",
		},
		{
			name: "participant job",
			job: &livekit.Job{
				Id:          "j3",
				Type:        livekit.JobType_JT_PARTICIPANT,
				Participant: &livekit.ParticipantInfo{Identity: "bob"},
			},
			wantIdentity: "agent-part-bob",
			wantName:     "Participant Agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accept, md := handler.OnJobRequest(context.Background(), tt.job)
			require.True(t, accept)
			require.NotNil(t, md)
			assert.Equal(t, tt.wantIdentity, md.ParticipantIdentity)
			assert.Equal(t, tt.wantName, md.ParticipantName)
		})
	}
}

func TestSimpleJobHandlerCustomMetadata(t *testing.T) {
	handler := &SimpleJobHandler{
		Metadata: func(job *livekit.Job) *JobMetadata {
			return &JobMetadata{ParticipantIdentity: "custom-" + job.Id}
		},
	}

	accept, md := handler.OnJobRequest(context.Background(), &livekit.Job{Id: "j9"})
	require.True(t, accept)
	require.NotNil(t, md)
	assert.Equal(t, "custom-j9", md.ParticipantIdentity)
}

func TestSimpleJobHandlerDelegation(t *testing.T) {
	jobErr := errors.New("job failed")
	var terminatedID string

	handler := &SimpleJobHandler{
		OnJob: func(ctx context.Context, job *livekit.Job, room *lksdk.Room) error {
			return jobErr
		},
		OnTerminated: func(jobID string) {
			terminatedID = jobID
		},
	}

	err := handler.OnJobAssigned(context.Background(), &livekit.Job{Id: "j1"}, nil)
	assert.ErrorIs(t, err, jobErr)

	handler.OnJobTerminated(context.Background(), "j1")
	assert.Equal(t, "j1", terminatedID)
}

func TestSimpleJobHandlerNilCallbacks(t *testing.T) {
	handler := &SimpleJobHandler{}

	assert.NoError(t, handler.OnJobAssigned(context.Background(), &livekit.Job{Id: "j1"}, nil))
	assert.NotPanics(t, func() {
		handler.OnJobTerminated(context.Background(), "j1")
	})
}

func TestJobContextSleep(t *testing.T) {
	jc := NewJobContext(context.Background(), &livekit.Job{Id: "j1"}, nil)

	start := time.Now()
	require.NoError(t, jc.Sleep(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestJobContextSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jc := NewJobContext(ctx, &livekit.Job{Id: "j1"}, nil)

	cancel()
	err := jc.Sleep(time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJobContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jc := NewJobContext(ctx, &livekit.Job{Id: "j1"}, nil)

	assert.Equal(t, ctx, jc.Context())

	select {
	case <-jc.Done():
		t.Fatal("context should not be done yet")
	default:
	}

	cancel()

	select {
	case <-jc.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be done after cancel")
	}
}

func TestJobContextTargetParticipantWithoutTarget(t *testing.T) {
	jc := NewJobContext(context.Background(), &livekit.Job{Id: "j1", Type: livekit.JobType_JT_ROOM}, nil)
	assert.Nil(t, jc.GetTargetParticipant())
}
