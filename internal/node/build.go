package node

import (
	"context"
	"time"

	"github.com/rudransh-shrivastava/connectsphere/internal/config"
	"github.com/rudransh-shrivastava/connectsphere/internal/discovery"
	"github.com/rudransh-shrivastava/connectsphere/internal/signaling"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport/webrtc"
	"github.com/sirupsen/logrus"
)

const browseTimeout = 3 * time.Second

// NewWebRTCTransport wires the signaling client and WebRTC transport
// described by cfg. The returned channel closes when the signaling
// connection is lost.
func NewWebRTCTransport(ctx context.Context, cfg config.Config, logger *logrus.Logger) (transport.Transport, <-chan struct{}) {
	url := cfg.Signaling.URL
	if cfg.Signaling.MDNS {
		url = browseSignaling(ctx, cfg, logger)
	}

	client := signaling.NewClient(url, logger)
	tr := webrtc.New(webrtc.Options{
		Signaler:    client,
		STUNServers: cfg.STUNServers,
		Logger:      logger,
	})
	return tr, client.Done()
}

func browseSignaling(ctx context.Context, cfg config.Config, logger *logrus.Logger) string {
	ctx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	svc, err := discovery.Browse(ctx, cfg.Signaling.MDNSService, logger)
	if err != nil {
		logger.Warnf("mDNS lookup failed, using %s: %v", cfg.Signaling.URL, err)
		return cfg.Signaling.URL
	}
	return svc.URL()
}
