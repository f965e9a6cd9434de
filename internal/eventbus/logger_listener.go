package eventbus

import (
	"context"

	"github.com/GauntletMC/Graphite/internal/logging"
)

// StartLoggingListener пишет события в лог компонента events. Вход и выход игроков
// идут на INFO, сбои загрузки на WARN, остальное на DEBUG.
func StartLoggingListener(bus EventBus, log *logging.Logger) (Subscription, error) {
	if log == nil {
		log = logging.GetComponentLogger("events")
	}
	return bus.Subscribe(context.Background(), Filter{}, func(_ context.Context, ev *Envelope) {
		switch ev.EventType {
		case TypePlayerJoined, TypePlayerLeft:
			var p PlayerEvent
			if err := ev.Decode(&p); err != nil {
				log.Warn("%s: %v", ev.ID, err)
				return
			}
			log.Info("[%s] %s %s (%s)", ev.World, ev.EventType, p.Name, p.UUID)
		case TypeChunkFailed:
			var c ChunkEvent
			if err := ev.Decode(&c); err != nil {
				log.Warn("%s: %v", ev.ID, err)
				return
			}
			log.Warn("[%s] чанк (%d, %d) не загружен: %s", ev.World, c.X, c.Z, c.Error)
		default:
			log.Debug("[%s] %s %s (%d байт)", ev.World, ev.EventType, ev.ID, len(ev.Payload))
		}
	})
}
