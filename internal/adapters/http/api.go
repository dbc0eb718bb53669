package http

import (
	stdhttp "net/http"
	"strings"

	"github.com/dkeye/Signal/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	cfg       *config.Config
	limiter   *IssueRateLimiter
	snapshots *SnapshotStore
}

func (a *handlers) health(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"ok": true})
}

// clientConfig tells the browser which mode to run in and which ICE
// servers to hand to RTCPeerConnection.
func (a *handlers) clientConfig(c *gin.Context) {
	servers := []webrtc.ICEServer{}
	if len(a.cfg.ICEServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: a.cfg.ICEServers})
	}
	c.JSON(stdhttp.StatusOK, gin.H{
		"mode":       a.cfg.ClientMode,
		"iceServers": servers,
	})
}

func (a *handlers) newRoom(c *gin.Context) {
	client := c.GetString(clientTokenKey)
	if !a.limiter.Allow(client) {
		c.JSON(stdhttp.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	roomID := uuid.NewString()[:8]
	base := strings.TrimSuffix(a.cfg.PublicBaseURL, "/")
	if base == "" {
		base = requestOrigin(c.Request)
	}
	phonePath := "/phone.html?room=" + roomID

	log.Info().Str("module", "adapters.http").Str("room", roomID).Str("client", client).Msg("room issued")
	c.JSON(stdhttp.StatusOK, gin.H{
		"roomId":    roomID,
		"phonePath": phonePath,
		"phoneUrl":  base + phonePath,
	})
}

func (a *handlers) saveMetrics(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	if _, err := a.snapshots.Save(body); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("metrics snapshot")
		c.JSON(stdhttp.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{"ok": true, "path": "/metrics.json"})
}

func (a *handlers) lastMetrics(c *gin.Context) {
	snap, ok := a.snapshots.Last()
	if !ok {
		c.JSON(stdhttp.StatusNotFound, gin.H{"error": "no_metrics"})
		return
	}
	c.JSON(stdhttp.StatusOK, snap)
}

// requestOrigin rebuilds the public origin, honoring reverse proxy headers.
func requestOrigin(r *stdhttp.Request) string {
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		proto = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return proto + "://" + host
}
