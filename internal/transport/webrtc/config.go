package webrtc

import "github.com/pion/webrtc/v3"

const (
	channelLabel    = "connectsphere"
	channelProtocol = "connectsphere/1"
)

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

// STUNConfig builds a peer connection configuration from the given STUN
// URLs, falling back to DefaultSTUNServers when none are given.
func STUNConfig(servers []string) webrtc.Configuration {
	if len(servers) == 0 {
		servers = DefaultSTUNServers
	}
	urls := make([]string, len(servers))
	copy(urls, servers)
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: urls},
		},
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
}

func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := channelProtocol
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
