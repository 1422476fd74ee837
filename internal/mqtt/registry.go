package mqtt

import (
	"sort"
	"sync"
)

// Device is a registered media device and its topics.
type Device struct {
	ID           string
	ControllerID string
	Type         string
	CommandTopic string
	StatusTopic  string
	Capabilities []string
}

// Directory maps media device ids to their topics. Devices that never
// registered fall back to <prefix>/<id>/command and <prefix>/<id>/status.
type Directory struct {
	prefix string

	mu      sync.RWMutex
	devices map[string]*Device
}

// NewDirectory creates an empty directory for topics under prefix.
func NewDirectory(prefix string) *Directory {
	return &Directory{
		prefix:  prefix,
		devices: make(map[string]*Device),
	}
}

// Prefix returns the topic prefix.
func (d *Directory) Prefix() string { return d.prefix }

// Register adds or updates a device.
func (d *Directory) Register(dev *Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cpy := *dev
	cpy.Capabilities = append([]string{}, dev.Capabilities...)
	d.devices[dev.ID] = &cpy
}

// Unregister removes a device.
func (d *Directory) Unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.devices, id)
}

// Get returns a copy of a registered device, or nil if not found.
func (d *Directory) Get(id string) *Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if dev, ok := d.devices[id]; ok {
		cpy := *dev
		cpy.Capabilities = append([]string{}, dev.Capabilities...)
		return &cpy
	}
	return nil
}

// Topics resolves the command and status topics of a device id.
func (d *Directory) Topics(id string) (command, status string) {
	command = d.prefix + "/" + id + "/command"
	status = d.prefix + "/" + id + "/status"
	d.mu.RLock()
	defer d.mu.RUnlock()
	if dev, ok := d.devices[id]; ok {
		if dev.CommandTopic != "" {
			command = dev.CommandTopic
		}
		if dev.StatusTopic != "" {
			status = dev.StatusTopic
		}
	}
	return command, status
}

// RegisterFromPayload registers every device of a payload.
func (d *Directory) RegisterFromPayload(payload *RegistrationPayload) {
	for _, dev := range payload.Devices {
		d.Register(&Device{
			ID:           dev.ID,
			ControllerID: payload.Controller.ID,
			Type:         dev.Type,
			CommandTopic: dev.Topics.Command,
			StatusTopic:  dev.Topics.Status,
			Capabilities: dev.Capabilities,
		})
	}
}

// IDs returns the registered device ids, sorted.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.devices))
	for id := range d.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear removes all devices.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = make(map[string]*Device)
}
