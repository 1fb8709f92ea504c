package discovery

import (
	"errors"
	"strings"
	"testing"

	"github.com/AdianComits/netopeer2/pkg/version"
)

func TestAgentTXTRoundTrip(t *testing.T) {
	info := &AgentInfo{
		AgentID:    "edge1",
		Port:       8830,
		Streams:    []string{"NETCONF", "syslog"},
		Replay:     []string{"NETCONF"},
		Datastores: []string{"running", "operational"},
	}

	strs := TXTRecordsToStrings(EncodeAgentTXT(info))
	want := []string{"ds=running,operational", "id=edge1", "rp=NETCONF", "st=NETCONF,syslog", "v=1"}
	if strings.Join(strs, " ") != strings.Join(want, " ") {
		t.Fatalf("TXT = %v, want %v", strs, want)
	}

	svc, err := DecodeAgentTXT(StringsToTXTRecords(strs))
	if err != nil {
		t.Fatalf("DecodeAgentTXT() error = %v", err)
	}
	if svc.AgentID != "edge1" || svc.Version != ProtocolVersion {
		t.Errorf("AgentID, Version = %q, %q", svc.AgentID, svc.Version)
	}
	if len(svc.Streams) != 2 || svc.Streams[1] != "syslog" {
		t.Errorf("Streams = %v", svc.Streams)
	}
	if len(svc.Replay) != 1 || len(svc.Datastores) != 2 {
		t.Errorf("Replay = %v, Datastores = %v", svc.Replay, svc.Datastores)
	}
}

func TestDecodeAgentTXTMissing(t *testing.T) {
	tests := []struct {
		name string
		txt  []string
	}{
		{"no version", []string{"id=edge1"}},
		{"no id", []string{"v=1"}},
		{"empty id", []string{"v=1", "id="}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAgentTXT(StringsToTXTRecords(tt.txt))
			if !errors.Is(err, ErrMissingRequired) {
				t.Errorf("DecodeAgentTXT() error = %v, want ErrMissingRequired", err)
			}
		})
	}
}

func TestDecodeAgentTXTIncompatibleVersion(t *testing.T) {
	_, err := DecodeAgentTXT(StringsToTXTRecords([]string{"v=2", "id=edge1"}))
	if !errors.Is(err, version.ErrIncompatible) {
		t.Errorf("DecodeAgentTXT() error = %v, want ErrIncompatible", err)
	}
}

func TestServiceEntryToAgentService(t *testing.T) {
	entry := ServiceEntry{
		Instance: "subnotif-edge1",
		Service:  ServiceType,
		Domain:   Domain,
		Host:     "edge1.local",
		Port:     8830,
		Text:     []string{"v=1", "id=edge1", "st=NETCONF"},
		Addrs:    []string{"192.168.1.10", "fe80::1"},
	}

	svc, err := entry.ToAgentService()
	if err != nil {
		t.Fatalf("ToAgentService() error = %v", err)
	}
	if svc.InstanceName != entry.Instance || svc.Host != entry.Host || svc.Port != entry.Port {
		t.Errorf("service = %+v", svc)
	}
	if len(svc.Addresses) != 2 {
		t.Errorf("Addresses = %v", svc.Addresses)
	}

	entry.Text = []string{"id=edge1"}
	if _, err := entry.ToAgentService(); err == nil {
		t.Error("ToAgentService() accepted an entry without version")
	}
}

func TestInstanceName(t *testing.T) {
	if got := (&AgentInfo{AgentID: "edge1"}).instanceName(); got != "subnotif-edge1" {
		t.Errorf("instanceName() = %q", got)
	}
	long := &AgentInfo{InstanceName: strings.Repeat("x", 80)}
	if got := long.instanceName(); len(got) != MaxInstanceNameLen {
		t.Errorf("len(instanceName()) = %d", len(got))
	}
	if err := ValidateInstanceName(""); err == nil {
		t.Error("ValidateInstanceName(\"\") = nil")
	}
}

func TestAddressAggregation(t *testing.T) {
	addrs := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "fe80::1"})
	if len(addrs) != 2 {
		t.Fatalf("mergeAddresses() = %v", addrs)
	}
	addrs = removeAddresses(addrs, []string{"10.0.0.1"})
	if len(addrs) != 1 || addrs[0] != "fe80::1" {
		t.Errorf("removeAddresses() = %v", addrs)
	}
}

func TestAdvertiserUpdateBeforeAdvertise(t *testing.T) {
	adv, err := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	if err != nil {
		t.Fatalf("NewMDNSAdvertiser() error = %v", err)
	}
	if err := adv.Update(&AgentInfo{AgentID: "edge1"}); !errors.Is(err, ErrNotAdvertising) {
		t.Errorf("Update() error = %v, want ErrNotAdvertising", err)
	}
	if err := adv.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
