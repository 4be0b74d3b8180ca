package discovery

import (
	"strings"

	"github.com/danmuck/clusternode/internal/runtime"
	"github.com/rs/zerolog/log"
)

// Channel is the per-system discovery unit joined to a Hub.
type Channel struct {
	hub *Hub
}

func NewChannel(hub *Hub) *Channel {
	if hub == nil {
		hub = NewHub()
	}
	return &Channel{hub: hub}
}

// Spawn starts a discovery channel in sys under ChannelName.
func Spawn(sys *runtime.System, hub *Hub) (runtime.Ref, error) {
	return sys.Spawn(ChannelName, NewChannel(hub))
}

func (c *Channel) Receive(self runtime.Ref, env runtime.Envelope) {
	switch m := env.Message.(type) {
	case RegisterReference:
		tag := strings.TrimSpace(m.Tag)
		if tag == "" || m.Ref == nil {
			return
		}
		if c.hub.register(self, tag, m.Ref) {
			log.Debug().Str("channel", self.Path()).Str("tag", tag).Str("ref", m.Ref.Path()).Msg("discovery reference up")
			go watch(self, m.Ref)
		}
	case UnregisterReference:
		if m.Ref == nil {
			return
		}
		c.hub.unregister(m.Ref)
	case referenceTerminated:
		log.Debug().Str("channel", self.Path()).Str("ref", m.Ref.Path()).Msg("discovery reference terminated")
		c.hub.unregister(m.Ref)
	case MonitorReference:
		tag := strings.TrimSpace(m.Tag)
		if tag == "" || env.Sender == nil {
			return
		}
		c.hub.monitor(self, tag, env.Sender)
	case UnmonitorReference:
		if env.Sender == nil {
			return
		}
		c.hub.unmonitor(strings.TrimSpace(m.Tag), env.Sender)
	}
}

func (c *Channel) PostStop(self runtime.Ref) {
	c.hub.leave(self)
}

func watch(self runtime.Ref, ref runtime.Ref) {
	select {
	case <-ref.Done():
		self.Tell(referenceTerminated{Ref: ref}, nil)
	case <-self.Done():
	}
}
