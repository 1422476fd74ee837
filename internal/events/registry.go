package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// traversal
	"traversal.started":   {},
	"traversal.completed": {},
	"traversal.cancelled": {},

	// sequencer
	"sequencer.started": {},
	"sequencer.stopped": {},

	// node
	"node.started":   {},
	"node.completed": {},
	"node.cancelled": {},
	"node.skipped":   {},

	// trigger
	"trigger.fired": {},

	// decision
	"decision.inert":  {},
	"decision.empty":  {},
	"group.iteration": {},
	"layer.launched":  {},

	// media
	"media.error":    {},
	"media.unloaded": {},

	// variables
	"variable.changed": {},

	// device
	"device.input": {},
	"device.error": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
