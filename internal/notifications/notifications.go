package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/homeassistant"
)

// Notifier fans alerts out through the host's notify services plus the host
// UI's persistent notification panel. Delivery failures are logged and not
// retried; a missed alert must never stall a control cycle.
type Notifier struct {
	ha      *homeassistant.Client
	enabled bool
}

func New(ha *homeassistant.Client, enabled bool) *Notifier {
	return &Notifier{ha: ha, enabled: enabled}
}

// Persistent creates a persistent notification in the host UI.
func (n *Notifier) Persistent(ctx context.Context, title, message string) {
	if !n.enabled {
		return
	}

	notificationID := "smart_aircon_manager_" + strings.ReplaceAll(strings.ToLower(title), " ", "_")
	err := n.ha.CallService(ctx, "persistent_notification", "create", map[string]any{
		"title":           fmt.Sprintf("Smart Aircon Manager: %s", title),
		"message":         message,
		"notification_id": notificationID,
	})
	if err != nil {
		log.Error().Err(err).Str("title", title).Msg("Error sending persistent notification")
	}
}

// Send delivers title+message to each configured notify service. Services that
// reject the title parameter get a combined single-message fallback.
func (n *Notifier) Send(ctx context.Context, services []string, title, message string) {
	for _, service := range services {
		name := strings.TrimPrefix(service, "notify.")

		err := n.ha.CallService(ctx, "notify", name, map[string]any{
			"title":   title,
			"message": message,
		})
		if err == nil {
			log.Debug().Str("service", service).Msg("Notification sent")
			continue
		}

		// Some services (SMS gateways and the like) only take a message.
		fallbackErr := n.ha.CallService(ctx, "notify", name, map[string]any{
			"message": title + "\n\n" + message,
		})
		if fallbackErr != nil {
			log.Error().Err(fallbackErr).Str("service", service).Msg("Failed to send notification")
		}
	}
}
