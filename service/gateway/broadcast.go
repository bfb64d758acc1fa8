package gateway

import (
	"context"
	"time"

	"RTGateway/logger"
	"RTGateway/service/bus"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

// handleBroadcast consumes one BroadcastInstruction from the outgoing
// channel and fans it out to the local recipients. Handles owned by other
// gateway instances are silently skipped; each instance delivers only to
// the connections it owns.
func (g *Gateway) handleBroadcast(ctx context.Context, msg bus.Message) {
	if !msg.Decoded() {
		logger.Warnf("[gateway] dropping non-JSON broadcast on %s (%d bytes)", msg.Channel, len(msg.Raw))
		incr(mBroadcastDropped, 1)
		return
	}

	var instr BroadcastInstruction
	if err := mapstructure.Decode(msg.Data, &instr); err != nil || instr.Type == "" {
		logger.Warnf("[gateway] malformed broadcast on %s: %v", msg.Channel, err)
		incr(mBroadcastDropped, 1)
		return
	}

	recipients := instr.Recipients
	if len(recipients) == 0 {
		// Default resolution: everyone currently present in
		// payload.roomId, an eventually-consistent snapshot taken now.
		roomID := instr.RoomID()
		if roomID != "" {
			rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			handles, err := g.presence.ListHandles(rctx, roomID)
			cancel()
			if err != nil {
				logger.Errorf("[gateway] broadcast presence lookup room=%s: %v", roomID, err)
				incr(mBroadcastDropped, 1)
				return
			}
			recipients = handles
		}
	}

	if len(recipients) == 0 {
		// Expected steady-state outcome, not a fault.
		logger.Infof("[gateway] broadcast %s resolved to zero recipients, skipping", instr.Type)
		incr(mBroadcastDropped, 1)
		return
	}

	effective := lo.Without(recipients, instr.ExcludeHandles...)
	frame := buildBroadcastFrame(instr.Type, instr.Payload)

	delivered := 0
	for _, handle := range effective {
		c, ok := g.conns.Get(handle)
		if !ok {
			// Not locally owned (other instance, or raced a disconnect).
			continue
		}
		if c.Enqueue(frame) {
			delivered++
		}
	}
	incr(mBroadcastDelivered, int64(delivered))
	logger.Infof("[gateway] broadcast %s delivered to %d/%d recipients", instr.Type, delivered, len(effective))
}
