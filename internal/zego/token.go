// Package zego issues ZEGOCLOUD token04 credentials for learning-session rooms.
package zego

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
	"github.com/google/uuid"

	"github.com/peerlearn/collab/config"
	"github.com/peerlearn/collab/internal/videosessions"
)

const secretLen = 32

// roomPayload is the token04 payload for a room-scoped token.
type roomPayload struct {
	RoomID       string      `json:"room_id"`
	Privilege    map[int]int `json:"privilege"`
	StreamIDList []string    `json:"stream_id_list,omitempty"`
}

// RoomID is the ZEGO room that hosts a learning session.
func RoomID(sessionID uuid.UUID) string {
	return "ls-" + sessionID.String()
}

// GenerateRoomToken signs a token04 token that lets userID log into roomID and, if canPublish, push streams.
func GenerateRoomToken(appID uint32, serverSecret, roomID, userID string, canPublish bool, validSec int64) (string, error) {
	if appID == 0 || serverSecret == "" {
		return "", fmt.Errorf("zego: app_id and server_secret required")
	}
	if len(serverSecret) != secretLen {
		return "", fmt.Errorf("zego: server_secret must be %d characters", secretLen)
	}
	publish := token04.PrivilegeDisable
	if canPublish {
		publish = token04.PrivilegeEnable
	}
	payload, err := json.Marshal(roomPayload{
		RoomID: roomID,
		Privilege: map[int]int{
			token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
			token04.PrivilegeKeyPublish: publish,
		},
	})
	if err != nil {
		return "", fmt.Errorf("zego: marshal payload: %w", err)
	}
	return token04.GenerateToken04(appID, userID, serverSecret, validSec, string(payload))
}

// Provisioner issues the session-wide join credential: a room token for the session's room,
// plus the join URL participants open.
type Provisioner struct {
	cfg config.ZegoConfig
}

// NewProvisioner creates a ZEGO-backed provisioner.
func NewProvisioner(cfg config.ZegoConfig) *Provisioner {
	return &Provisioner{cfg: cfg}
}

func (p *Provisioner) Provision(ctx context.Context, sessionID uuid.UUID) (videosessions.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return videosessions.Credentials{}, err
	}
	room := RoomID(sessionID)
	token, err := GenerateRoomToken(p.cfg.AppID, p.cfg.ServerSecret, room, room, true, p.cfg.TokenValidSec)
	if err != nil {
		return videosessions.Credentials{}, err
	}
	return videosessions.Credentials{JoinCredential: token, JoinURL: joinURL(p.cfg.JoinBaseURL, room)}, nil
}

// LocalProvisioner issues opaque random credentials when no ZEGO app is configured (development).
type LocalProvisioner struct {
	baseURL string
}

// NewLocalProvisioner creates a provisioner that needs no external service.
func NewLocalProvisioner(baseURL string) *LocalProvisioner {
	return &LocalProvisioner{baseURL: baseURL}
}

func (p *LocalProvisioner) Provision(ctx context.Context, sessionID uuid.UUID) (videosessions.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return videosessions.Credentials{}, err
	}
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return videosessions.Credentials{JoinCredential: token, JoinURL: joinURL(p.baseURL, RoomID(sessionID))}, nil
}

// NewFromConfig picks the ZEGO provisioner when credentials are configured.
func NewFromConfig(cfg config.ZegoConfig) videosessions.Provisioner {
	if cfg.AppID == 0 || cfg.ServerSecret == "" {
		return NewLocalProvisioner(cfg.JoinBaseURL)
	}
	return NewProvisioner(cfg)
}

func joinURL(base, room string) string {
	return strings.TrimRight(base, "/") + "/" + room
}
