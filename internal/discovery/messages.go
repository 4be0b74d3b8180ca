// Package discovery is the process-local discovery channel: units register
// themselves under a tag, other units monitor tags and are told when matching
// references come up or go down anywhere on the hub.
package discovery

import "github.com/danmuck/clusternode/internal/runtime"

// ChannelName is the well-known unit name of a system's discovery channel.
const ChannelName = "cluster.discovery"

// RegisterReference announces Ref under Tag to every monitor of Tag.
type RegisterReference struct {
	Tag string
	Ref runtime.Ref
}

// UnregisterReference withdraws Ref from every tag it was registered under.
type UnregisterReference struct {
	Ref runtime.Ref
}

// MonitorReference subscribes the sender to ups and downs of Tag. Current
// registrations are replayed as ReferenceUp.
type MonitorReference struct {
	Tag string
}

type UnmonitorReference struct {
	Tag string
}

type ReferenceUp struct {
	Tag string
	Ref runtime.Ref
}

type ReferenceDown struct {
	Tag string
	Ref runtime.Ref
}

type referenceTerminated struct {
	Ref runtime.Ref
}
