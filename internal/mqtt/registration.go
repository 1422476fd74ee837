package mqtt

import (
	"encoding/json"
	"fmt"
)

// RegistrationPayload is a v1 announcement from a device controller listing
// the media devices it drives.
type RegistrationPayload struct {
	Version    int                  `json:"version"`
	Controller ControllerInfo       `json:"controller"`
	Devices    []DeviceRegistration `json:"devices"`
}

// ControllerInfo contains controller metadata.
type ControllerInfo struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Firmware string `json:"firmware"`
}

// DeviceRegistration describes a single media device.
type DeviceRegistration struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Capabilities []string     `json:"capabilities"`
	Topics       DeviceTopics `json:"topics"`
}

// DeviceTopics overrides the default command and status topics.
type DeviceTopics struct {
	Command string `json:"command"`
	Status  string `json:"status"`
}

// ParseRegistration parses a registration payload from JSON bytes.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}

	if payload.Controller.ID == "" {
		return nil, fmt.Errorf("controller.id is required")
	}

	return &payload, nil
}

// ValidationResult contains validation outcome.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateRegistration checks a payload before it is added to a directory.
// Devices without an id are errors; devices the controller does not mark as
// playable are accepted with a warning.
func ValidateRegistration(payload *RegistrationPayload) *ValidationResult {
	result := &ValidationResult{Valid: true}
	seen := make(map[string]bool)
	for _, dev := range payload.Devices {
		if dev.ID == "" {
			result.Errors = append(result.Errors, "device with empty id")
			result.Valid = false
			continue
		}
		if seen[dev.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate device: %s", dev.ID))
			result.Valid = false
			continue
		}
		seen[dev.ID] = true
		if !containsString(dev.Capabilities, "play") {
			result.Warnings = append(result.Warnings, fmt.Sprintf("device %s: no play capability", dev.ID))
		}
	}
	return result
}

func containsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
