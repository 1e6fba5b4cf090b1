// Package agent implements the worker side of the LiveKit agent protocol.
// A worker registers with a LiveKit server over a WebSocket connection,
// advertises its capacity, and receives jobs that ask it to join rooms as
// a server-side participant.
//
// Applications implement JobHandler to decide which jobs to accept and what
// to do once connected to a room. The Worker takes care of registration,
// keepalive pings, job status reporting, and reconnection.
package agent

import (
	"context"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// JobHandler is the interface that agents must implement to handle jobs.
// A job represents a task assigned to an agent, typically involving joining
// a LiveKit room and interacting with its participants.
//
// Implementations should be thread-safe as methods may be called concurrently.
type JobHandler interface {
	// OnJobRequest is called when a job is offered to the agent.
	// The agent should inspect the job details and decide whether to accept it.
	// If accepted, the agent should return metadata specifying how it will join the room.
	//
	// This method should return quickly as the server waits for the response.
	// Heavy initialization should be deferred to OnJobAssigned.
	//
	// Parameters:
	//   - ctx: Context for the request, may have a deadline
	//   - job: The job being offered, contains room and participant information
	//
	// Returns:
	//   - accept: true to accept the job, false to decline
	//   - metadata: Agent participant metadata if accepting (can be nil)
	OnJobRequest(ctx context.Context, job *livekit.Job) (accept bool, metadata *JobMetadata)

	// OnJobAssigned is called when a job has been assigned to this agent.
	// The agent is already connected to the room as a participant when this is called.
	// This is where the main agent logic should be implemented.
	//
	// The method should block until the agent's work is complete or the context is cancelled.
	// Returning an error will mark the job as failed.
	//
	// Parameters:
	//   - ctx: Context for the job, cancelled when the job should terminate
	//   - job: The assigned job with full details
	//   - room: Connected room client for interacting with the room
	//
	// Returns:
	//   - error: nil on success, error to mark job as failed
	OnJobAssigned(ctx context.Context, job *livekit.Job, room *lksdk.Room) error

	// OnJobTerminated is called when a job is terminated.
	// This can happen due to:
	//   - Agent disconnection
	//   - Job dispatch removal by the server
	//   - Server shutdown
	//   - Explicit job termination request
	//
	// Use this method to clean up any resources associated with the job.
	// The room connection is already closed when this is called.
	//
	// Parameters:
	//   - ctx: Context for cleanup operations
	//   - jobID: ID of the terminated job
	OnJobTerminated(ctx context.Context, jobID string)
}

// JobMetadata contains agent-specific metadata for a job.
// When an agent accepts a job, it provides this metadata to specify
// how it will appear as a participant in the room.
type JobMetadata struct {
	// ParticipantIdentity is the unique identity the agent will use when joining the room.
	// If empty, a default identity will be generated.
	ParticipantIdentity string

	// ParticipantName is the display name for the agent participant.
	// This is what other participants will see as the agent's name.
	ParticipantName string

	// ParticipantMetadata is optional metadata attached to the participant.
	// This can be any string data (often JSON) that other participants can read.
	ParticipantMetadata string

	// ParticipantAttributes are key-value pairs attached to the participant.
	// These are synchronized to all participants and can be updated during the session.
	ParticipantAttributes map[string]string

	// SupportsResume indicates if the agent can resume a previously started job.
	// If true, the agent should be able to recover its state if reconnected to the same job.
	SupportsResume bool
}

// RoomCallbackProvider is an optional interface that handlers can implement
// to supply the room callbacks used when the worker connects to a room.
// This is how handlers receive data packets, track subscriptions, and
// participant events for their jobs.
type RoomCallbackProvider interface {
	// GetRoomCallbacks returns callbacks to be used when connecting to the room.
	GetRoomCallbacks() *lksdk.RoomCallback
}

// WorkerOptions configures the agent worker behavior and capabilities.
type WorkerOptions struct {
	// AgentName identifies this agent type.
	// Jobs can be dispatched to specific agent names.
	// If empty, the agent will receive jobs for any agent name.
	AgentName string

	// Version is the agent version string.
	// This is reported to the server for debugging and compatibility checks.
	Version string

	// Namespace provides multi-tenant isolation.
	// Agents in different namespaces cannot see each other's jobs.
	// If empty, uses the default namespace.
	Namespace string

	// JobType specifies which type of jobs this agent handles.
	// Common types include:
	//   - JT_ROOM: Agent joins when a room is created
	//   - JT_PARTICIPANT: Agent joins when participants connect
	//   - JT_PUBLISHER: Agent joins when participants publish media
	JobType livekit.JobType

	// Permissions the agent will have when joining rooms.
	// These permissions determine what the agent can do:
	//   - CanPublish: Publish audio/video tracks
	//   - CanSubscribe: Subscribe to other participants' tracks
	//   - CanPublishData: Send data messages
	//   - Hidden: Hide from other participants
	// If nil, default permissions are used.
	Permissions *livekit.ParticipantPermission

	// MaxJobs is the maximum number of concurrent jobs this worker will handle.
	// Once this limit is reached, the worker reports as "full" and won't receive new jobs.
	// Set to 0 for unlimited jobs (limited only by system resources).
	MaxJobs int

	// Logger for debug output.
	// If nil, a default logger is used.
	// Implement the Logger interface for custom logging integration.
	Logger Logger

	// PingInterval for keepalive messages to the server.
	// Regular pings ensure the connection stays active and detect disconnections quickly.
	// Default: 10s
	PingInterval time.Duration

	// PingTimeout for keepalive responses.
	// If a ping response isn't received within this duration, the connection is considered lost.
	// Default: 2s
	PingTimeout time.Duration

	// LoadCalculator for custom load calculation.
	// Implement this to define custom metrics for job assignment decisions.
	// If nil, load is the ratio of active jobs to MaxJobs.
	LoadCalculator LoadCalculator
}

// WorkerStatus represents the current state of the worker.
// Used by the server to determine job assignment.
type WorkerStatus int

const (
	// WorkerStatusAvailable indicates the worker can accept new jobs.
	WorkerStatusAvailable WorkerStatus = iota

	// WorkerStatusFull indicates the worker is at capacity.
	// No new jobs will be assigned until capacity is available.
	WorkerStatusFull
)

// String returns the string representation of WorkerStatus.
// Returns "available", "full", or "unknown".
func (ws WorkerStatus) String() string {
	switch ws {
	case WorkerStatusAvailable:
		return "available"
	case WorkerStatusFull:
		return "full"
	default:
		return "unknown"
	}
}

// Logger interface for pluggable logging.
// Implement this interface to integrate with your application's logging system.
// The fields parameter accepts key-value pairs for structured logging.
type Logger interface {
	// Debug logs a debug-level message with optional fields.
	Debug(msg string, fields ...interface{})

	// Info logs an info-level message with optional fields.
	Info(msg string, fields ...interface{})

	// Warn logs a warning-level message with optional fields.
	Warn(msg string, fields ...interface{})

	// Error logs an error-level message with optional fields.
	Error(msg string, fields ...interface{})
}

// Error represents a typed error with a code and message.
// Error codes are stable and can be used for programmatic error handling.
type Error struct {
	// Code is a stable identifier for the error type.
	Code string

	// Message provides human-readable error details.
	Message string
}

// Error implements the error interface.
// Returns a string in the format "CODE: message".
func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Common errors returned by the agent framework.
// Use errors.Is() to check for specific error types.
var (
	// ErrConnectionFailed indicates a failure to establish connection to LiveKit server.
	ErrConnectionFailed = &Error{Code: "CONNECTION_FAILED", Message: "failed to connect to LiveKit server"}

	// ErrInvalidCredentials indicates the API key or secret is invalid.
	ErrInvalidCredentials = &Error{Code: "INVALID_CREDENTIALS", Message: "invalid API key or secret"}

	// ErrRegistrationTimeout indicates the worker registration process timed out.
	ErrRegistrationTimeout = &Error{Code: "REGISTRATION_TIMEOUT", Message: "worker registration timed out"}

	// ErrRegistrationRejected indicates the server rejected the worker registration.
	ErrRegistrationRejected = &Error{Code: "REGISTRATION_REJECTED", Message: "worker registration rejected by server"}

	// ErrNotConnected indicates the worker has no active server connection.
	ErrNotConnected = &Error{Code: "NOT_CONNECTED", Message: "worker is not connected"}

	// ErrWorkerClosing indicates the worker is shutting down and cannot start or accept work.
	ErrWorkerClosing = &Error{Code: "WORKER_CLOSING", Message: "worker is closing"}

	// ErrTokenExpired indicates the authentication token has expired and needs renewal.
	ErrTokenExpired = &Error{Code: "TOKEN_EXPIRED", Message: "authentication token has expired"}

	// ErrRoomNotFound indicates the specified room does not exist.
	ErrRoomNotFound = &Error{Code: "ROOM_NOT_FOUND", Message: "room does not exist"}
)

// WorkerState holds persistent state for reconnection recovery.
// This state is preserved across disconnections so the worker can resume
// reporting with the same identity after re-registering.
type WorkerState struct {
	// WorkerID is the unique identifier assigned by the server.
	WorkerID string

	// ActiveJobs maps job IDs to their current state.
	ActiveJobs map[string]*JobState

	// LastStatus is the last reported worker status.
	LastStatus WorkerStatus

	// LastLoad is the last reported load value (0.0 to 1.0).
	LastLoad float32
}

// JobState holds a snapshot of an active job, recorded whenever the worker
// loses its connection.
type JobState struct {
	// JobID is the unique job identifier.
	JobID string

	// Status is the current job status.
	Status livekit.JobStatus

	// StartedAt is when the job was started.
	StartedAt time.Time

	// RoomName is the name of the room associated with the job.
	RoomName string
}
