package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/voicedesk/agent-console/internal/config"
	"github.com/voicedesk/agent-console/pkg/appconfig"
)

// tokenClaims is the JWT payload shape minted for participants. Decoded
// directly from the token so the grants can be asserted without a verifier.
type tokenClaims struct {
	Issuer  string `json:"iss"`
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Video   struct {
		Room              string   `json:"room"`
		RoomJoin          bool     `json:"roomJoin"`
		CanPublish        *bool    `json:"canPublish"`
		CanPublishData    *bool    `json:"canPublishData"`
		CanPublishSources []string `json:"canPublishSources"`
	} `json:"video"`
}

func decodeTokenClaims(t *testing.T, token string) tokenClaims {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3, "expected a three-segment JWT")

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var claims tokenClaims
	require.NoError(t, json.Unmarshal(payload, &claims))
	return claims
}

func TestConnectionDetailsLocalDefaults(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp connectionDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "ws://127.0.0.1:7880", resp.ServerURL)
	assert.True(t, strings.HasPrefix(resp.RoomName, "console-room-"), resp.RoomName)
	assert.True(t, strings.HasPrefix(resp.ParticipantName, "user-"), resp.ParticipantName)
	require.NotEmpty(t, resp.ParticipantToken)

	claims := decodeTokenClaims(t, resp.ParticipantToken)
	assert.Equal(t, "devkey", claims.Issuer)
	assert.Equal(t, resp.ParticipantName, claims.Subject)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, resp.RoomName, claims.Video.Room)

	// The AU record enables chat but neither camera nor screen share.
	require.NotNil(t, claims.Video.CanPublishData)
	assert.True(t, *claims.Video.CanPublishData)
	assert.Equal(t, []string{"microphone"}, claims.Video.CanPublishSources)
}

func TestConnectionDetailsHonorsRequestedNames(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", connectionDetailsRequest{
		RoomName:        "demo-room",
		ParticipantName: "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp connectionDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "demo-room", resp.RoomName)
	assert.Equal(t, "alice", resp.ParticipantName)

	claims := decodeTokenClaims(t, resp.ParticipantToken)
	assert.Equal(t, "demo-room", claims.Video.Room)
	assert.Equal(t, "alice", claims.Subject)
}

func TestConnectionDetailsGrantsFollowToggles(t *testing.T) {
	s := newTestServer(t, func(opts *Options) {
		provider, err := appconfig.NewProvider(appconfig.FlipMin())
		require.NoError(t, err)
		opts.Provider = provider
	})

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp connectionDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// FlipMin enables video input but not screen share.
	claims := decodeTokenClaims(t, resp.ParticipantToken)
	assert.Equal(t, []string{"microphone", "camera"}, claims.Video.CanPublishSources)
}

func TestConnectionDetailsDispatchesAgent(t *testing.T) {
	rooms := &fakeRoomCreator{}
	s := newTestServer(t, func(opts *Options) {
		record := appconfig.Default()
		record.AgentName = appconfig.String("console-assistant")
		provider, err := appconfig.NewProvider(record)
		require.NoError(t, err)
		opts.Provider = provider
		opts.RoomClient = rooms
	})

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", connectionDetailsRequest{RoomName: "agent-room"})
	require.Equal(t, http.StatusOK, rec.Code)

	reqs := rooms.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "agent-room", reqs[0].Name)
	require.Len(t, reqs[0].Agents, 1)
	assert.Equal(t, "console-assistant", reqs[0].Agents[0].AgentName)
}

func TestConnectionDetailsRoomCreationFailure(t *testing.T) {
	s := newTestServer(t, func(opts *Options) {
		record := appconfig.Default()
		record.AgentName = appconfig.String("console-assistant")
		provider, err := appconfig.NewProvider(record)
		require.NoError(t, err)
		opts.Provider = provider
		opts.RoomClient = &fakeRoomCreator{err: errors.New("room service down")}
	})

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UPSTREAM", resp.Error.Code)
}

func TestConnectionDetailsSandboxForwarding(t *testing.T) {
	var gotSandboxID, gotPath string
	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSandboxID = r.Header.Get("X-Sandbox-ID")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"serverUrl":"wss://sandbox.livekit.cloud","roomName":"sbx-room","participantName":"sbx-user","participantToken":"sbx-token"}`))
	}))
	defer sandbox.Close()

	s := newTestServer(t, func(opts *Options) {
		opts.Config.LiveKitAPIKey = ""
		opts.Config.LiveKitAPISecret = ""
		opts.Config.SandboxURL = sandbox.URL

		record := appconfig.Default()
		record.SandboxID = appconfig.String("sbx_demo")
		provider, err := appconfig.NewProvider(record)
		require.NoError(t, err)
		opts.Provider = provider
	})

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "sbx_demo", gotSandboxID)
	assert.Equal(t, "/api/sandbox/connection-details", gotPath)

	var resp connectionDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wss://sandbox.livekit.cloud", resp.ServerURL)
	assert.Equal(t, "sbx-token", resp.ParticipantToken)
}

func TestConnectionDetailsSandboxFailure(t *testing.T) {
	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sandbox.Close()

	s := newTestServer(t, func(opts *Options) {
		opts.Config.LiveKitAPIKey = ""
		opts.Config.LiveKitAPISecret = ""
		opts.Config.SandboxURL = sandbox.URL

		record := appconfig.Default()
		record.SandboxID = appconfig.String("sbx_demo")
		provider, err := appconfig.NewProvider(record)
		require.NoError(t, err)
		opts.Provider = provider
	})

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UPSTREAM", resp.Error.Code)
}

func TestConnectionDetailsNotConfigured(t *testing.T) {
	s := newTestServer(t, func(opts *Options) {
		opts.Config.LiveKitAPIKey = ""
		opts.Config.LiveKitAPISecret = ""
	})

	rec := doRequest(t, s, http.MethodPost, "/api/connection-details", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_CONFIGURED", resp.Error.Code)
}

func TestServerStartShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	provider, err := appconfig.NewProvider(appconfig.Default())
	require.NoError(t, err)

	s := New(Options{
		Config: config.Config{
			ListenAddr:     "127.0.0.1:0",
			AllowedOrigins: []string{"*"},
		},
		Provider: provider,
		Logger:   zap.NewNop(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}
