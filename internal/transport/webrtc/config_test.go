package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
)

func TestSTUNConfigDefaults(t *testing.T) {
	config := STUNConfig(nil)

	if len(config.ICEServers) != 1 {
		t.Errorf("expected 1 ICE server group, got %d", len(config.ICEServers))
	}

	if len(config.ICEServers[0].URLs) != 5 {
		t.Errorf("expected 5 STUN URLs, got %d", len(config.ICEServers[0].URLs))
	}

	if config.ICETransportPolicy != webrtc.ICETransportPolicyAll {
		t.Errorf("expected ICETransportPolicyAll")
	}
}

func TestSTUNConfigOverride(t *testing.T) {
	servers := []string{"stun:stun.example.org:3478"}
	config := STUNConfig(servers)

	if len(config.ICEServers[0].URLs) != 1 || config.ICEServers[0].URLs[0] != servers[0] {
		t.Errorf("expected override URLs, got %v", config.ICEServers[0].URLs)
	}

	servers[0] = "changed"
	if config.ICEServers[0].URLs[0] == "changed" {
		t.Error("expected config to own its URL slice")
	}
}

func TestDefaultDataChannelConfig(t *testing.T) {
	config := DefaultDataChannelConfig()

	if config.Ordered == nil || !*config.Ordered {
		t.Error("expected Ordered to be true")
	}

	if config.MaxRetransmits != nil {
		t.Error("expected MaxRetransmits to be nil (unlimited)")
	}

	if config.Protocol == nil || *config.Protocol != channelProtocol {
		t.Errorf("expected Protocol to be '%s'", channelProtocol)
	}
}
