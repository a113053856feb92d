package controller

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/internal/models"
	"github.com/tvlink-server/tvlink-server/internal/session"
	"github.com/tvlink-server/tvlink-server/pkg/ssap"
)

// eventTopics 是会话建立后自动保持的电视状态订阅
var eventTopics = []struct {
	kind models.EventKind
	uri  string
}{
	{models.EventVolume, ssap.URIAudioGetVolume},
	{models.EventChannel, ssap.URICurrentChannel},
	{models.EventForeground, ssap.URIForegroundApp},
	{models.EventPower, ssap.URIPowerState},
}

// EventSubject builds the bus subject for one device event.
func EventSubject(address string, kind models.EventKind) string {
	return "tv." + strings.ReplaceAll(address, ".", "-") + ".event." + string(kind)
}

// startEventSubscriptions opens the durable TV state subscriptions and
// republishes every push event on the bus. Publishing is best-effort:
// a down bus never disturbs the device session.
func (m *Manager) startEventSubscriptions(sess *session.DeviceSession) {
	if m.nc == nil {
		return
	}

	address := sess.Address()
	for _, topic := range eventTopics {
		kind := topic.kind
		_, err := sess.Subscribe(topic.uri, nil, func(payload json.RawMessage) {
			m.publishEvent(address, kind, payload)
		})
		if err != nil {
			log.Warn().
				Err(err).
				Str("address", address).
				Str("kind", string(kind)).
				Msg("TV state subscription failed")
		}
	}
}

func (m *Manager) publishEvent(address string, kind models.EventKind, payload json.RawMessage) {
	ev := models.TVEvent{
		Address:   address,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := m.nc.Publish(EventSubject(address, kind), data); err != nil {
		log.Debug().
			Err(err).
			Str("address", address).
			Str("kind", string(kind)).
			Msg("Event publish failed")
	}
}
