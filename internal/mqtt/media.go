package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/NarrativeEngine/internal/media"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// MediaName is the controller name nodes use to bind to MQTT devices.
const MediaName = "mqtt"

// ErrNotConnected is returned by Init while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Command is published to a device's command topic.
type Command struct {
	Command string            `json:"command"`
	NodeID  string            `json:"node_id"`
	Params  map[string]string `json:"params,omitempty"`
}

// Status is published by a device on its status topic.
type Status struct {
	State string `json:"state"`
}

// RegisterMedia adds the mqtt controller to reg.
func RegisterMedia(reg *media.Registry, t Transport, dir *Directory) {
	reg.Register(MediaName, func(n *narrative.Node) (media.Controller, error) {
		return NewMediaController(t, dir, n), nil
	})
}

// MediaController drives one device for one node. The device is named by the
// node's "device" param and defaults to the node id.
type MediaController struct {
	t      Transport
	nodeID string
	params map[string]string

	command string
	status  string

	mu         sync.Mutex
	loaded     bool
	playing    bool
	ended      chan struct{}
	subscribed bool
}

// NewMediaController resolves the device topics of n.
func NewMediaController(t Transport, dir *Directory, n *narrative.Node) *MediaController {
	device := n.Media.Params["device"]
	if device == "" {
		device = n.ID
	}
	command, status := dir.Topics(device)
	return &MediaController{
		t:       t,
		nodeID:  n.ID,
		params:  n.Media.Params,
		command: command,
		status:  status,
	}
}

// Topics returns the command and status topics in use.
func (c *MediaController) Topics() (command, status string) { return c.command, c.status }

func (c *MediaController) Init(context.Context) error {
	if c.t == nil || !c.t.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *MediaController) Load(context.Context, *narrative.Node) error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		if err := c.t.Subscribe(c.status, c.onStatus); err != nil {
			return fmt.Errorf("subscribe %s: %w", c.status, err)
		}
		c.mu.Lock()
		c.subscribed = true
	}
	c.ended = make(chan struct{})
	c.playing = false
	c.mu.Unlock()

	if err := c.publish("load"); err != nil {
		return err
	}
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *MediaController) Play(context.Context) error {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return fmt.Errorf("mqtt %s: play before load", c.nodeID)
	}
	c.playing = true
	c.mu.Unlock()
	return c.publish("play")
}

func (c *MediaController) Unload(context.Context) error {
	c.mu.Lock()
	loaded, subscribed := c.loaded, c.subscribed
	c.loaded, c.playing, c.subscribed = false, false, false
	c.mu.Unlock()

	var errs []error
	if loaded {
		errs = append(errs, c.publish("unload"))
	}
	if subscribed {
		errs = append(errs, c.t.Unsubscribe(c.status))
	}
	return errors.Join(errs...)
}

func (c *MediaController) HasMedia() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *MediaController) EndOfContent() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *MediaController) publish(command string) error {
	payload, err := json.Marshal(Command{Command: command, NodeID: c.nodeID, Params: c.params})
	if err != nil {
		return err
	}
	if err := c.t.Publish(c.command, payload); err != nil {
		return fmt.Errorf("publish %s: %w", command, err)
	}
	return nil
}

// onStatus closes the end-of-content signal on the first "ended" status
// received while playing.
func (c *MediaController) onStatus(_ paho.Client, msg paho.Message) {
	var st Status
	if err := json.Unmarshal(msg.Payload(), &st); err != nil || st.State != "ended" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing || c.ended == nil {
		return
	}
	c.playing = false
	close(c.ended)
}
