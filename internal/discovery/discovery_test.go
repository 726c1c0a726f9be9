package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestServiceURL(t *testing.T) {
	svc := Service{Host: "192.168.1.20", Port: 8080}
	if got := svc.URL(); got != "ws://192.168.1.20:8080/ws" {
		t.Errorf("unexpected url %s", got)
	}

	svc = Service{Host: "fe80::1", Port: 9000, Path: "/signal"}
	if got := svc.URL(); got != "ws://[fe80::1]:9000/signal" {
		t.Errorf("unexpected url %s", got)
	}
}

func TestFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("connectsphere-box", "_connectsphere._tcp", "local.")
	entry.Port = 8080
	entry.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.7")}
	entry.Text = []string{"txtv=0", "path=/ws"}

	svc, ok := fromEntry(entry)
	if !ok {
		t.Fatal("expected entry to resolve")
	}
	if svc.URL() != "ws://10.0.0.7:8080/ws" {
		t.Errorf("unexpected url %s", svc.URL())
	}
	if svc.Instance != "connectsphere-box" {
		t.Errorf("unexpected instance %s", svc.Instance)
	}
}

func TestFromEntryWithoutAddress(t *testing.T) {
	entry := zeroconf.NewServiceEntry("x", "_connectsphere._tcp", "local.")
	if _, ok := fromEntry(entry); ok {
		t.Error("expected entry without address to be skipped")
	}
	if _, ok := fromEntry(nil); ok {
		t.Error("expected nil entry to be skipped")
	}
}
