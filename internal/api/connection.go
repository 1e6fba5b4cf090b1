package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"go.uber.org/zap"

	"github.com/voicedesk/agent-console/pkg/appconfig"
)

const (
	participantTokenTTL = 15 * time.Minute

	// sandboxResponseLimit caps how much of the sandbox service's response
	// is passed through to the client.
	sandboxResponseLimit = 1 << 20
)

type connectionDetailsRequest struct {
	RoomName        string `json:"roomName"`
	ParticipantName string `json:"participantName"`
}

type connectionDetailsResponse struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantName  string `json:"participantName"`
	ParticipantToken string `json:"participantToken"`
}

// handleConnectionDetails issues everything the front-end needs to join a
// room. With LiveKit credentials configured the token is minted locally and
// its grants follow the active record's feature toggles. Without credentials,
// a record carrying a sandbox ID delegates to the hosted sandbox token
// service.
func (s *Server) handleConnectionDetails(w http.ResponseWriter, r *http.Request) {
	var req connectionDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unable to parse JSON payload")
		return
	}

	if req.RoomName == "" {
		req.RoomName = "console-room-" + uuid.NewString()
	}
	if req.ParticipantName == "" {
		req.ParticipantName = "user-" + uuid.NewString()
	}

	record := s.provider.Config()

	switch {
	case s.cfg.LiveKitAPIKey != "" && s.cfg.LiveKitAPISecret != "":
		s.issueLocalToken(w, r, record, req)
	case record.SandboxID != nil:
		s.forwardToSandbox(w, r, *record.SandboxID)
	default:
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED",
			"neither LiveKit credentials nor a sandbox ID are configured")
	}
}

func (s *Server) issueLocalToken(w http.ResponseWriter, r *http.Request, record appconfig.Config, req connectionDetailsRequest) {
	if record.AgentName != nil {
		if err := s.ensureAgentRoom(r.Context(), req.RoomName, *record.AgentName); err != nil {
			s.logger.Error("failed to create room with agent dispatch",
				zap.String("room", req.RoomName), zap.Error(err))
			writeError(w, http.StatusBadGateway, "UPSTREAM", "could not provision the room")
			return
		}
	}

	token, err := s.mintParticipantToken(record, req.RoomName, req.ParticipantName)
	if err != nil {
		s.logger.Error("failed to mint participant token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "TOKEN", "could not mint participant token")
		return
	}

	tokensIssuedTotal.WithLabelValues("local").Inc()
	writeJSON(w, http.StatusOK, connectionDetailsResponse{
		ServerURL:        s.cfg.LiveKitURL,
		RoomName:         req.RoomName,
		ParticipantName:  req.ParticipantName,
		ParticipantToken: token,
	})
}

// mintParticipantToken builds a join token whose publish grants mirror the
// record's feature toggles. Microphone publishing is always allowed; camera
// and screen share only when the record enables them.
func (s *Server) mintParticipantToken(record appconfig.Config, roomName, participantName string) (string, error) {
	canPublish := true
	canSubscribe := true
	canPublishData := record.SupportsChatInput

	sources := []string{"microphone"}
	if record.SupportsVideoInput {
		sources = append(sources, "camera")
	}
	if record.SupportsScreenShare {
		sources = append(sources, "screen_share", "screen_share_audio")
	}

	grant := &auth.VideoGrant{
		RoomJoin:          true,
		Room:              roomName,
		CanPublish:        &canPublish,
		CanSubscribe:      &canSubscribe,
		CanPublishData:    &canPublishData,
		CanPublishSources: sources,
	}

	at := auth.NewAccessToken(s.cfg.LiveKitAPIKey, s.cfg.LiveKitAPISecret)
	at.AddGrant(grant).
		SetIdentity(participantName).
		SetName(participantName).
		SetValidFor(participantTokenTTL)

	return at.ToJWT()
}

// ensureAgentRoom creates the room ahead of the participant joining so the
// agent dispatch is attached from the start.
func (s *Server) ensureAgentRoom(ctx context.Context, roomName, agentName string) error {
	if s.rooms == nil {
		return errors.New("room service client not configured")
	}
	_, err := s.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name: roomName,
		Agents: []*livekit.RoomAgentDispatch{
			{AgentName: agentName},
		},
	})
	return err
}

// forwardToSandbox proxies the request to the hosted sandbox token service
// and passes its response through untouched.
func (s *Server) forwardToSandbox(w http.ResponseWriter, r *http.Request, sandboxID string) {
	endpoint := strings.TrimRight(s.cfg.SandboxURL, "/") + "/api/sandbox/connection-details"

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not build sandbox request")
		return
	}
	req.Header.Set("X-Sandbox-ID", sandboxID)

	resp, err := s.sandbox.Do(req)
	if err != nil {
		s.logger.Error("sandbox token service unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "UPSTREAM", "sandbox token service unreachable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, sandboxResponseLimit))
	if err != nil {
		writeError(w, http.StatusBadGateway, "UPSTREAM", "sandbox token service returned an unreadable response")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("sandbox token service rejected request",
			zap.Int("status", resp.StatusCode), zap.String("sandbox_id", sandboxID))
		writeError(w, http.StatusBadGateway, "UPSTREAM", "sandbox token service rejected the request")
		return
	}

	tokensIssuedTotal.WithLabelValues("sandbox").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
