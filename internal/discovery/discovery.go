// Package discovery defines the external service-advertisement interface
// spec.md scopes out of the core (mDNS/DNS-SD registration is an OS/host
// concern, not protocol logic). The daemon only needs something to call at
// start/stop; what actually talks to the host's DNS-SD daemon is supplied
// by the embedder.
package discovery

// ServiceInfo describes one DNS-SD service registration: the two AirPlay
// legacy-pairing services are "_raop._tcp" and "_airplay._tcp", each with
// its own instance name, port and TXT record set, per spec.md §6.
type ServiceInfo struct {
	Type         string // e.g. "_raop._tcp" or "_airplay._tcp"
	InstanceName string
	Port         int
	TXT          map[string]string
}

// Advertiser registers and withdraws service advertisements. NoopAdvertiser
// satisfies it for embedders (and tests) that don't need real mDNS.
type Advertiser interface {
	Advertise(ServiceInfo) error
	Withdraw(ServiceInfo) error
}

// NoopAdvertiser discards every registration; the default when no host
// mDNS responder is wired in.
type NoopAdvertiser struct{}

func (NoopAdvertiser) Advertise(ServiceInfo) error { return nil }
func (NoopAdvertiser) Withdraw(ServiceInfo) error  { return nil }

var _ Advertiser = NoopAdvertiser{}
