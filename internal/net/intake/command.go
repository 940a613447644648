package intake

import (
	"time"

	"ccw/server/internal/net/proto"
	"ccw/server/internal/sim"
)

// Stager accepts commands for the next tick. *sim.Loop satisfies it.
type Stager interface {
	Enqueue(cmd sim.Command) (bool, string)
	Tick() uint64
}

type CommandContext struct {
	Stager Stager
	Now    func() time.Time
}

// StageClientCommand converts msg into a command owned by actorID and stages
// it. The staged command is returned together with the refusal reason when
// staging failed.
func StageClientCommand(ctx CommandContext, actorID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	var zero sim.Command

	if actorID == "" {
		return zero, false, sim.CommandRejectInvalid
	}
	command, ok := proto.ClientCommand(msg)
	if !ok {
		return zero, false, sim.CommandRejectInvalid
	}

	command.ActorID = actorID
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Stager == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	command.OriginTick = ctx.Stager.Tick()
	if ok, reason := ctx.Stager.Enqueue(command); !ok {
		return zero, false, reason
	}

	return command, true, ""
}
