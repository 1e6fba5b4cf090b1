package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	CurrentProtocol      = 1
	defaultPingInterval  = 10 * time.Second
	defaultPingTimeout   = 2 * time.Second
	registrationTimeout  = 10 * time.Second
	reconnectInterval    = 5 * time.Second
	maxReconnectAttempts = 5
	maxStatusRetries     = 3
	statusRetryDelay     = 1 * time.Second
	maxMessageSize       = 1024 * 1024
)

// Worker represents an agent worker that can handle jobs.
// A worker connects to the LiveKit server, registers its capabilities,
// and processes jobs assigned by the server.
//
// The worker maintains a persistent WebSocket connection for real-time
// communication and automatically handles reconnection on failures.
type Worker struct {
	serverURL string
	apiKey    string
	apiSecret string
	opts      WorkerOptions
	handler   JobHandler

	mu            sync.RWMutex
	writeMu       sync.Mutex // Protects websocket writes
	conn          *websocket.Conn
	workerID      string
	activeJobs    map[string]*activeJob
	status        WorkerStatus
	load          float32
	closing       bool
	reconnectChan chan struct{}

	// State persistence for reconnection
	savedState   *WorkerState
	lastPingTime time.Time
	lastPongTime time.Time

	// Status update queue for retries
	statusQueue     []statusUpdate
	statusQueueMu   sync.Mutex
	statusQueueChan chan struct{}

	// Load calculation
	loadCalculator LoadCalculator
	jobStartTimes  map[string]time.Time

	// Overridable in tests
	registrationTimeout time.Duration

	logger Logger
}

// statusUpdate represents a pending job status update
type statusUpdate struct {
	jobID      string
	status     livekit.JobStatus
	error      string
	retryCount int
	timestamp  time.Time
}

type activeJob struct {
	job       *livekit.Job
	room      *lksdk.Room
	cancel    context.CancelFunc
	startedAt time.Time
	status    livekit.JobStatus
}

// NewWorker creates a new agent worker.
//
// Parameters:
//   - serverURL: WebSocket URL of the LiveKit server (e.g., "ws://localhost:7880")
//   - apiKey: API key for authentication
//   - apiSecret: API secret for authentication
//   - handler: Implementation of JobHandler interface to process jobs
//   - opts: Configuration options for the worker
//
// The worker is created but not started. Call Start() to begin processing.
//
// Example:
//
//	handler := &MyJobHandler{}
//	opts := WorkerOptions{
//	    AgentName: "my-agent",
//	    JobType:   livekit.JobType_JT_ROOM,
//	    MaxJobs:   5,
//	}
//	worker := NewWorker(url, key, secret, handler, opts)
//	if err := worker.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func NewWorker(serverURL, apiKey, apiSecret string, handler JobHandler, opts WorkerOptions) *Worker {
	if opts.PingInterval == 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	if opts.Logger == nil {
		logger, _ := zap.NewProduction()
		opts.Logger = &zapLogger{logger.Sugar()}
	}

	w := &Worker{
		serverURL:           serverURL,
		apiKey:              apiKey,
		apiSecret:           apiSecret,
		opts:                opts,
		handler:             handler,
		activeJobs:          make(map[string]*activeJob),
		status:              WorkerStatusAvailable,
		reconnectChan:       make(chan struct{}, 1),
		statusQueue:         make([]statusUpdate, 0),
		statusQueueChan:     make(chan struct{}, 100),
		jobStartTimes:       make(map[string]time.Time),
		registrationTimeout: registrationTimeout,
		logger:              opts.Logger,
	}

	// Initialize state for reconnection
	w.savedState = &WorkerState{
		ActiveJobs: make(map[string]*JobState),
	}

	if opts.LoadCalculator != nil {
		w.loadCalculator = opts.LoadCalculator
	} else {
		w.loadCalculator = &DefaultLoadCalculator{}
	}

	return w
}

// Start begins the worker connection and job handling.
// The worker will automatically reconnect if the connection is lost.
//
// The worker performs the following operations on start:
//   - Establishes WebSocket connection to the server
//   - Registers with configured capabilities
//   - Begins accepting and processing jobs
//
// Returns an error if:
//   - Initial connection fails
//   - Authentication fails
//   - Worker is already closing
//   - Registration is rejected by server
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return ErrWorkerClosing
	}
	w.mu.Unlock()

	// Initial connection
	if err := w.connect(ctx); err != nil {
		return err
	}

	// Start message handling
	go w.handleMessages(ctx)
	go w.handlePing(ctx)

	// Handle reconnection
	go w.handleReconnect(ctx)

	// Handle status update retries
	go w.handleStatusUpdateRetries(ctx)

	return nil
}

// Stop gracefully shuts down the worker with a default timeout of 30 seconds.
//
// This method:
//   - Stops accepting new jobs
//   - Waits for active jobs to complete
//   - Closes the server connection
//
// If active jobs don't complete within the timeout, they are forcefully terminated.
func (w *Worker) Stop() error {
	return w.StopWithTimeout(30 * time.Second)
}

// StopWithTimeout gracefully shuts down the worker with a custom timeout.
// This is useful when you need to control how long to wait for active jobs.
//
// Parameters:
//   - timeout: Maximum time to wait for active jobs to complete
//
// If timeout is exceeded, jobs are forcefully terminated.
// Use timeout of 0 to stop immediately without waiting.
func (w *Worker) StopWithTimeout(timeout time.Duration) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return nil // Already closing
	}
	w.closing = true
	conn := w.conn
	activeCount := len(w.activeJobs)
	w.mu.Unlock()

	w.logger.Info("Starting graceful shutdown", "activeJobs", activeCount, "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Terminate all active jobs
	w.terminateAllJobs()

	// Wait for jobs to complete or timeout
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.mu.RLock()
				remaining := len(w.activeJobs)
				w.mu.RUnlock()

				if remaining == 0 {
					return
				}
				w.logger.Debug("Waiting for jobs to complete", "remaining", remaining)
			}
		}
	}()

	select {
	case <-done:
		w.logger.Info("All jobs completed")
	case <-ctx.Done():
		w.logger.Warn("Shutdown timeout exceeded, forcing termination")
	}

	// Close WebSocket connection
	if conn != nil {
		w.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		_ = conn.Close()

		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}

	return nil
}

// UpdateStatus updates the worker's status and load.
// This informs the server about the worker's capacity for handling new jobs.
//
// Parameters:
//   - status: WorkerStatusAvailable or WorkerStatusFull
//   - load: Current load as a value between 0.0 (idle) and 1.0 (fully loaded)
//
// The server uses this information for job assignment decisions.
//
// Returns an error if the worker is not connected.
func (w *Worker) UpdateStatus(status WorkerStatus, load float32) error {
	w.mu.Lock()
	w.status = status
	w.load = load
	conn := w.conn
	jobCount := len(w.activeJobs)
	w.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	statusProto := convertWorkerStatus(status)
	update := &livekit.UpdateWorkerStatus{
		Status:   &statusProto,
		Load:     load,
		JobCount: uint32(jobCount),
	}

	msg := &livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_UpdateWorker{
			UpdateWorker: update,
		},
	}

	return w.sendMessage(msg)
}

func (w *Worker) connect(ctx context.Context) error {
	// Generate auth token
	at := auth.NewAccessToken(w.apiKey, w.apiSecret)
	grant := &auth.VideoGrant{
		Agent: true,
	}
	at.SetVideoGrant(grant)

	authToken, err := at.ToJWT()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	// Build WebSocket URL
	u, err := url.Parse(w.serverURL)
	if err != nil {
		return err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else if u.Scheme != "wss" {
		u.Scheme = "ws"
	}
	u.Path = "/agent"
	q := u.Query()
	q.Set("protocol", fmt.Sprintf("%d", CurrentProtocol))
	u.RawQuery = q.Encode()

	headers := http.Header{
		"Authorization": []string{"Bearer " + authToken},
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrInvalidCredentials
		}
		return ErrConnectionFailed
	}
	conn.SetReadLimit(maxMessageSize)

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	// Register worker
	if err := w.register(ctx); err != nil {
		closeErr := conn.Close()
		if closeErr != nil {
			w.logger.Error("Failed to close connection after registration error", "closeError", closeErr, "registrationError", err)
		}
		return err
	}

	// Send initial status update
	if err := w.UpdateStatus(WorkerStatusAvailable, 0.0); err != nil {
		w.logger.Error("Failed to send initial status update", "error", err)
	}

	return nil
}

func (w *Worker) register(ctx context.Context) error {
	req := &livekit.RegisterWorkerRequest{
		Type:               w.opts.JobType,
		Version:            w.opts.Version,
		AgentName:          w.opts.AgentName,
		AllowedPermissions: w.opts.Permissions,
	}
	if w.opts.Namespace != "" {
		req.Namespace = &w.opts.Namespace
	}

	msg := &livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_Register{
			Register: req,
		},
	}

	if err := w.sendMessage(msg); err != nil {
		return err
	}

	// Wait for registration response
	ctx, cancel := context.WithTimeout(ctx, w.registrationTimeout)
	defer cancel()

	type readResult struct {
		data []byte
		err  error
	}
	readChan := make(chan readResult, 1)

	for {
		go func() {
			_, data, err := w.conn.ReadMessage()
			readChan <- readResult{data: data, err: err}
		}()

		select {
		case <-ctx.Done():
			return ErrRegistrationTimeout
		case result := <-readChan:
			if result.err != nil {
				return result.err
			}

			serverMsg, err := w.parseServerMessage(result.data)
			if err != nil {
				return err
			}

			if resp := serverMsg.GetRegister(); resp != nil {
				// Empty worker ID indicates rejection
				if resp.WorkerId == "" {
					return ErrRegistrationRejected
				}

				w.mu.Lock()
				w.workerID = resp.WorkerId
				w.mu.Unlock()

				serverVersion := ""
				if resp.ServerInfo != nil {
					serverVersion = resp.ServerInfo.Version
				}
				w.logger.Info("Worker registered", "workerID", resp.WorkerId, "serverVersion", serverVersion)
				return nil
			}
			// Continue waiting if it's not a registration response
		}
	}
}

func (w *Worker) handleMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			w.mu.RLock()
			conn := w.conn
			closing := w.closing
			w.mu.RUnlock()

			if conn == nil || closing {
				return
			}

			_, data, err := conn.ReadMessage()
			if err != nil {
				// Check if we're closing to avoid logging errors during shutdown
				w.mu.RLock()
				closing := w.closing
				w.mu.RUnlock()

				if !closing {
					w.logger.Error("Read error", "error", err)
					w.triggerReconnect()
				}
				return
			}

			serverMsg, err := w.parseServerMessage(data)
			if err != nil {
				w.logger.Error("Parse error", "error", err)
				continue
			}

			w.handleServerMessage(ctx, serverMsg)
		}
	}
}

func (w *Worker) handleServerMessage(ctx context.Context, msg *livekit.ServerMessage) {
	switch m := msg.Message.(type) {
	case *livekit.ServerMessage_Availability:
		w.handleAvailabilityRequest(ctx, m.Availability)
	case *livekit.ServerMessage_Assignment:
		w.handleJobAssignment(ctx, m.Assignment)
	case *livekit.ServerMessage_Termination:
		w.handleJobTermination(ctx, m.Termination)
	case *livekit.ServerMessage_Pong:
		w.mu.Lock()
		w.lastPongTime = time.Now()
		w.mu.Unlock()
	case *livekit.ServerMessage_Register:
		// Registration response already handled in register
	default:
		w.logger.Warn("Unknown server message", "type", fmt.Sprintf("%T", m))
	}
}

func (w *Worker) handleAvailabilityRequest(ctx context.Context, req *livekit.AvailabilityRequest) {
	job := req.Job

	// Check if we can accept the job
	w.mu.RLock()
	canAccept := w.status == WorkerStatusAvailable && !w.closing
	if w.opts.MaxJobs > 0 && len(w.activeJobs) >= w.opts.MaxJobs {
		canAccept = false
	}
	// Check for duplicate job
	if _, exists := w.activeJobs[job.Id]; exists {
		w.logger.Warn("Duplicate job assignment attempted", "jobID", job.Id)
		canAccept = false
	}
	w.mu.RUnlock()

	var resp *livekit.AvailabilityResponse
	if canAccept {
		// Ask handler if it wants this job with timeout and panic recovery
		handlerCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		accept, metadata := w.callHandlerSafely(handlerCtx, job)
		if accept && metadata != nil {
			resp = &livekit.AvailabilityResponse{
				JobId:                 job.Id,
				Available:             true,
				SupportsResume:        metadata.SupportsResume,
				ParticipantIdentity:   metadata.ParticipantIdentity,
				ParticipantName:       metadata.ParticipantName,
				ParticipantMetadata:   metadata.ParticipantMetadata,
				ParticipantAttributes: metadata.ParticipantAttributes,
			}
		}
	}

	if resp == nil {
		resp = &livekit.AvailabilityResponse{
			JobId:     job.Id,
			Available: false,
		}
	}

	msg := &livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_Availability{
			Availability: resp,
		},
	}

	if err := w.sendMessage(msg); err != nil {
		w.logger.Error("Failed to send availability response", "error", err)
	}
}

func (w *Worker) handleJobAssignment(ctx context.Context, assignment *livekit.JobAssignment) {
	job := assignment.Job

	w.logger.Info("Job assigned", "jobID", job.Id, "room", job.Room.Name)

	w.mu.RLock()
	_, duplicate := w.activeJobs[job.Id]
	w.mu.RUnlock()
	if duplicate {
		w.logger.Warn("Ignoring assignment for already active job", "jobID", job.Id)
		return
	}

	roomURL := w.serverURL
	if assignment.Url != nil && *assignment.Url != "" {
		roomURL = *assignment.Url
	}

	// Handlers can supply their own room callbacks. The worker layers its
	// disconnect bookkeeping on top of whatever the handler provides.
	roomCallback := &lksdk.RoomCallback{}
	if provider, ok := w.handler.(RoomCallbackProvider); ok {
		if cb := provider.GetRoomCallbacks(); cb != nil {
			roomCallback = cb
		}
	}
	handlerDisconnected := roomCallback.OnDisconnectedWithReason
	roomCallback.OnDisconnectedWithReason = func(reason lksdk.DisconnectionReason) {
		w.logger.Info("Disconnected from room", "jobID", job.Id, "reason", reason)

		switch reason {
		case lksdk.DuplicateIdentity:
			w.updateJobStatus(job.Id, livekit.JobStatus_JS_FAILED, "duplicate participant identity")
		case lksdk.ParticipantRemoved:
			w.updateJobStatus(job.Id, livekit.JobStatus_JS_FAILED, "participant was removed from room")
		case lksdk.RoomClosed:
			w.updateJobStatus(job.Id, livekit.JobStatus_JS_FAILED, "room was closed")
		}

		if handlerDisconnected != nil {
			handlerDisconnected(reason)
		}
	}

	// Connect using the token provided by the server
	room, err := lksdk.ConnectToRoomWithToken(roomURL, assignment.Token, roomCallback, lksdk.WithAutoSubscribe(false))
	if err != nil {
		errorMsg := err.Error()
		var jobError error

		if strings.Contains(errorMsg, "unauthorized") || strings.Contains(errorMsg, "401") {
			jobError = ErrTokenExpired
			w.logger.Error("Token expired or invalid", "error", err, "jobID", job.Id)
		} else if strings.Contains(errorMsg, "not found") || strings.Contains(errorMsg, "404") {
			jobError = ErrRoomNotFound
			w.logger.Error("Room not found", "error", err, "jobID", job.Id, "room", job.Room.Name)
		} else {
			w.logger.Error("Failed to connect to room", "error", err, "jobID", job.Id)
			jobError = err
		}

		w.updateJobStatus(job.Id, livekit.JobStatus_JS_FAILED, jobError.Error())
		return
	}

	// Store active job
	jobCtx, cancel := context.WithCancel(ctx)
	now := time.Now()
	w.mu.Lock()
	w.activeJobs[job.Id] = &activeJob{
		job:       job,
		room:      room,
		cancel:    cancel,
		startedAt: now,
		status:    livekit.JobStatus_JS_RUNNING,
	}
	w.jobStartTimes[job.Id] = now
	w.mu.Unlock()

	// Update job status to running
	w.updateJobStatus(job.Id, livekit.JobStatus_JS_RUNNING, "")

	// Update worker load
	w.updateLoad()

	// Run job handler with panic recovery
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Handler panic in OnJobAssigned", "panic", r, "jobID", job.Id)
				w.updateJobStatus(job.Id, livekit.JobStatus_JS_FAILED, fmt.Sprintf("handler panic: %v", r))
			}

			w.mu.Lock()
			delete(w.activeJobs, job.Id)
			delete(w.jobStartTimes, job.Id)
			w.mu.Unlock()

			room.Disconnect()
			cancel()
			w.updateLoad()
		}()

		err := w.handler.OnJobAssigned(jobCtx, job, room)
		if err != nil {
			w.logger.Error("Job handler error", "jobID", job.Id, "error", err)
			w.updateJobStatus(job.Id, livekit.JobStatus_JS_FAILED, err.Error())
		} else {
			w.updateJobStatus(job.Id, livekit.JobStatus_JS_SUCCESS, "")
		}
	}()
}

func (w *Worker) handleJobTermination(ctx context.Context, term *livekit.JobTermination) {
	w.mu.Lock()
	active, exists := w.activeJobs[term.JobId]
	w.mu.Unlock()

	if !exists {
		w.logger.Warn("Received termination for unknown job", "jobID", term.JobId)
		return
	}

	w.logger.Info("Job terminated", "jobID", term.JobId)

	// Cancel job context
	active.cancel()

	// Notify handler with panic recovery
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Handler panic in OnJobTerminated", "panic", r, "jobID", term.JobId)
			}
		}()
		w.handler.OnJobTerminated(ctx, term.JobId)
	}()
}

func (w *Worker) updateJobStatus(jobID string, status livekit.JobStatus, errorMsg string) {
	update := &livekit.UpdateJobStatus{
		JobId:  jobID,
		Status: status,
		Error:  errorMsg,
	}

	msg := &livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_UpdateJob{
			UpdateJob: update,
		},
	}

	if err := w.sendMessage(msg); err != nil {
		w.logger.Error("Failed to update job status, queuing for retry", "jobID", jobID, "status", status, "error", err)
		w.queueStatusUpdate(jobID, status, errorMsg)
	} else {
		w.removeFromStatusQueue(jobID)
	}
}

func (w *Worker) sendMessage(msg *livekit.WorkerMessage) error {
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *Worker) parseServerMessage(data []byte) (*livekit.ServerMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	if len(data) > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes", len(data))
	}

	// Servers may send JSON instead of protobuf, detectable by a '{' prefix
	var msg livekit.ServerMessage
	if data[0] == '{' {
		if err := protojson.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
	} else {
		if err := proto.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
	}

	if err := validateServerMessage(&msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	return &msg, nil
}

// validateServerMessage ensures the message has required fields
func validateServerMessage(msg *livekit.ServerMessage) error {
	if msg == nil {
		return fmt.Errorf("nil message")
	}
	if msg.Message == nil {
		return fmt.Errorf("missing message content")
	}

	switch m := msg.Message.(type) {
	case *livekit.ServerMessage_Register:
		if m.Register == nil {
			return fmt.Errorf("missing registration response")
		}
		// Empty WorkerId is valid, it indicates registration rejection
	case *livekit.ServerMessage_Availability:
		if m.Availability == nil || m.Availability.Job == nil {
			return fmt.Errorf("missing job in availability request")
		}
		if m.Availability.Job.Id == "" {
			return fmt.Errorf("missing job ID")
		}
		if m.Availability.Job.Room == nil {
			return fmt.Errorf("missing room in job")
		}
	case *livekit.ServerMessage_Assignment:
		if m.Assignment == nil || m.Assignment.Job == nil {
			return fmt.Errorf("missing job in assignment")
		}
		if m.Assignment.Token == "" {
			return fmt.Errorf("missing token in assignment")
		}
	case *livekit.ServerMessage_Termination:
		if m.Termination == nil || m.Termination.JobId == "" {
			return fmt.Errorf("missing job ID in termination")
		}
	}

	return nil
}

func (w *Worker) handlePing(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			lastPing := w.lastPingTime
			lastPong := w.lastPongTime
			w.mu.RUnlock()

			if conn == nil {
				continue
			}

			// The previous ping went unanswered, consider the connection dead
			if !lastPing.IsZero() && lastPong.Before(lastPing) && time.Since(lastPing) > w.opts.PingTimeout {
				w.logger.Warn("Ping timeout, reconnecting", "lastPing", lastPing)
				w.triggerReconnect()
				continue
			}

			ping := &livekit.WorkerPing{
				Timestamp: time.Now().Unix(),
			}

			msg := &livekit.WorkerMessage{
				Message: &livekit.WorkerMessage_Ping{
					Ping: ping,
				},
			}

			if err := w.sendMessage(msg); err != nil {
				w.logger.Error("Failed to send ping", "error", err)
				w.triggerReconnect()
			} else {
				w.mu.Lock()
				w.lastPingTime = time.Now()
				w.mu.Unlock()
			}
		}
	}
}

func (w *Worker) handleReconnect(ctx context.Context) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.reconnectChan:
			attempts++
			if attempts > maxReconnectAttempts {
				w.logger.Error("Max reconnection attempts reached")
				return
			}

			w.logger.Info("Attempting to reconnect", "attempt", attempts)
			time.Sleep(reconnectInterval)

			if err := w.connect(ctx); err != nil {
				w.logger.Error("Reconnection failed", "error", err)
				w.triggerReconnect()
			} else {
				w.restoreState()
				attempts = 0
				go w.handleMessages(ctx)
			}
		}
	}
}

func (w *Worker) triggerReconnect() {
	w.mu.RLock()
	closing := w.closing
	w.mu.RUnlock()

	if closing {
		return
	}

	// Save current state before reconnection
	w.saveState()

	select {
	case w.reconnectChan <- struct{}{}:
	default:
	}
}

// saveState persists current worker state for recovery
func (w *Worker) saveState() {
	w.mu.RLock()
	defer w.mu.RUnlock()

	w.savedState.WorkerID = w.workerID
	w.savedState.LastStatus = w.status
	w.savedState.LastLoad = w.load

	w.savedState.ActiveJobs = make(map[string]*JobState)
	for id, job := range w.activeJobs {
		jobState := &JobState{
			JobID:     id,
			Status:    job.status,
			StartedAt: job.startedAt,
		}
		if job.job != nil && job.job.Room != nil {
			jobState.RoomName = job.job.Room.Name
		}
		w.savedState.ActiveJobs[id] = jobState
	}
}

// restoreState attempts to restore state after reconnection
func (w *Worker) restoreState() {
	if w.savedState == nil || w.savedState.WorkerID == "" {
		return
	}

	w.logger.Info("Restoring worker state after reconnection",
		"workerID", w.savedState.WorkerID,
		"activeJobs", len(w.savedState.ActiveJobs))

	w.mu.Lock()
	w.workerID = w.savedState.WorkerID
	w.mu.Unlock()

	if err := w.UpdateStatus(w.savedState.LastStatus, w.savedState.LastLoad); err != nil {
		w.logger.Error("Failed to restore status", "error", err)
	}
}

// callHandlerSafely calls OnJobRequest with panic recovery and timeout
func (w *Worker) callHandlerSafely(ctx context.Context, job *livekit.Job) (accept bool, metadata *JobMetadata) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Handler panic in OnJobRequest", "panic", r, "jobID", job.Id)
			accept = false
			metadata = nil
		}
	}()

	type result struct {
		accept   bool
		metadata *JobMetadata
	}
	resultChan := make(chan result, 1)

	// Run handler in goroutine to enable timeout
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Handler panic in OnJobRequest goroutine", "panic", r, "jobID", job.Id)
				resultChan <- result{false, nil}
			}
		}()

		a, m := w.handler.OnJobRequest(ctx, job)
		resultChan <- result{a, m}
	}()

	select {
	case <-ctx.Done():
		w.logger.Error("Handler timeout in OnJobRequest", "jobID", job.Id)
		return false, nil
	case res := <-resultChan:
		return res.accept, res.metadata
	}
}

func (w *Worker) terminateAllJobs() {
	w.mu.Lock()
	jobs := make([]*activeJob, 0, len(w.activeJobs))
	for _, job := range w.activeJobs {
		jobs = append(jobs, job)
	}
	w.mu.Unlock()

	for _, job := range jobs {
		if job != nil && job.cancel != nil {
			job.cancel()
		}
	}
}

func (w *Worker) updateLoad() {
	metrics := w.buildLoadMetrics()
	load := w.loadCalculator.Calculate(metrics)

	w.mu.RLock()
	jobCount := len(w.activeJobs)
	maxJobs := w.opts.MaxJobs
	w.mu.RUnlock()

	status := WorkerStatusAvailable
	if maxJobs > 0 && jobCount >= maxJobs {
		status = WorkerStatusFull
	}

	if err := w.UpdateStatus(status, load); err != nil {
		w.logger.Debug("Failed to send load update", "error", err)
	}
}

func (w *Worker) buildLoadMetrics() LoadMetrics {
	w.mu.RLock()
	jobCount := len(w.activeJobs)
	maxJobs := w.opts.MaxJobs

	durations := make(map[string]time.Duration)
	now := time.Now()
	for jobID, startTime := range w.jobStartTimes {
		durations[jobID] = now.Sub(startTime)
	}
	w.mu.RUnlock()

	return LoadMetrics{
		ActiveJobs:  jobCount,
		MaxJobs:     maxJobs,
		JobDuration: durations,
	}
}

func convertWorkerStatus(status WorkerStatus) livekit.WorkerStatus {
	switch status {
	case WorkerStatusFull:
		return livekit.WorkerStatus_WS_FULL
	default:
		return livekit.WorkerStatus_WS_AVAILABLE
	}
}

// IsConnected returns whether the worker is currently connected to the server.
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

// WorkerID returns the identifier assigned by the server during registration.
// Returns an empty string before registration completes.
func (w *Worker) WorkerID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.workerID
}

// Health returns the current health status of the worker.
//
// The health report includes connection status, worker ID, current load,
// and details for every active job. The structure is JSON-serializable,
// which makes it suitable for health endpoints and shutdown logging.
func (w *Worker) Health() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	health := map[string]interface{}{
		"connected":      w.conn != nil,
		"worker_id":      w.workerID,
		"status":         w.status.String(),
		"active_jobs":    len(w.activeJobs),
		"max_jobs":       w.opts.MaxJobs,
		"load":           w.load,
		"last_ping_time": w.lastPingTime,
	}

	jobs := make([]map[string]interface{}, 0, len(w.activeJobs))
	for id, job := range w.activeJobs {
		roomName := ""
		if job.job != nil && job.job.Room != nil {
			roomName = job.job.Room.Name
		}
		jobs = append(jobs, map[string]interface{}{
			"id":         id,
			"room":       roomName,
			"status":     job.status.String(),
			"started_at": job.startedAt,
			"duration":   time.Since(job.startedAt),
		})
	}
	health["jobs"] = jobs

	return health
}

// queueStatusUpdate adds a status update to the retry queue
func (w *Worker) queueStatusUpdate(jobID string, status livekit.JobStatus, errorMsg string) {
	w.statusQueueMu.Lock()
	defer w.statusQueueMu.Unlock()

	// Coalesce with an existing update for the same job and status
	for i, update := range w.statusQueue {
		if update.jobID == jobID && update.status == status {
			w.statusQueue[i].retryCount++
			w.statusQueue[i].timestamp = time.Now()
			return
		}
	}

	w.statusQueue = append(w.statusQueue, statusUpdate{
		jobID:      jobID,
		status:     status,
		error:      errorMsg,
		retryCount: 0,
		timestamp:  time.Now(),
	})

	// Signal the retry handler
	select {
	case w.statusQueueChan <- struct{}{}:
	default:
	}
}

// removeFromStatusQueue removes completed updates from the queue
func (w *Worker) removeFromStatusQueue(jobID string) {
	w.statusQueueMu.Lock()
	defer w.statusQueueMu.Unlock()

	filtered := w.statusQueue[:0]
	for _, update := range w.statusQueue {
		if update.jobID != jobID {
			filtered = append(filtered, update)
		}
	}
	w.statusQueue = filtered
}

// handleStatusUpdateRetries processes the retry queue
func (w *Worker) handleStatusUpdateRetries(ctx context.Context) {
	ticker := time.NewTicker(statusRetryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.statusQueueChan:
			w.processStatusQueue()
		case <-ticker.C:
			w.processStatusQueue()
		}
	}
}

// processStatusQueue attempts to send pending status updates
func (w *Worker) processStatusQueue() {
	w.statusQueueMu.Lock()
	pendingUpdates := make([]statusUpdate, len(w.statusQueue))
	copy(pendingUpdates, w.statusQueue)
	w.statusQueue = w.statusQueue[:0]
	w.statusQueueMu.Unlock()

	for _, update := range pendingUpdates {
		if update.retryCount >= maxStatusRetries {
			w.logger.Error("Max retries exceeded for job status update",
				"jobID", update.jobID,
				"status", update.status,
				"retries", update.retryCount)
			continue
		}

		// Skip non-final updates for jobs that are no longer active
		if update.status != livekit.JobStatus_JS_SUCCESS &&
			update.status != livekit.JobStatus_JS_FAILED {
			w.mu.RLock()
			_, isActive := w.activeJobs[update.jobID]
			w.mu.RUnlock()

			if !isActive {
				w.logger.Debug("Skipping status update for inactive job", "jobID", update.jobID)
				continue
			}
		}

		msg := &livekit.WorkerMessage{
			Message: &livekit.WorkerMessage_UpdateJob{
				UpdateJob: &livekit.UpdateJobStatus{
					JobId:  update.jobID,
					Status: update.status,
					Error:  update.error,
				},
			},
		}

		if err := w.sendMessage(msg); err != nil {
			update.retryCount++
			update.timestamp = time.Now()

			w.statusQueueMu.Lock()
			w.statusQueue = append(w.statusQueue, update)
			w.statusQueueMu.Unlock()

			w.logger.Warn("Failed to send status update, will retry",
				"jobID", update.jobID,
				"status", update.status,
				"retry", update.retryCount,
				"error", err)
		} else {
			w.logger.Debug("Successfully sent retried status update",
				"jobID", update.jobID,
				"status", update.status,
				"retry", update.retryCount)
		}
	}
}

// zapLogger wraps zap.SugaredLogger to implement the Logger interface
type zapLogger struct {
	*zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to the Logger interface expected by
// WorkerOptions. This lets applications share one logger between the worker
// and the rest of the process.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l.Sugar()}
}

func (z *zapLogger) Debug(msg string, fields ...interface{}) {
	z.SugaredLogger.Debugw(msg, fields...)
}

func (z *zapLogger) Info(msg string, fields ...interface{}) {
	z.SugaredLogger.Infow(msg, fields...)
}

func (z *zapLogger) Warn(msg string, fields ...interface{}) {
	z.SugaredLogger.Warnw(msg, fields...)
}

func (z *zapLogger) Error(msg string, fields ...interface{}) {
	z.SugaredLogger.Errorw(msg, fields...)
}
