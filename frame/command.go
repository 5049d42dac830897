package frame

import "time"

// CommandFrame is an operational instruction pushed down a device's command
// stream.  Exactly one of the payload fields is normally set; the hub does
// not enforce that, since payloads are opaque to it, but devices reject
// frames they cannot interpret via a Rejected acknowledgement.
type CommandFrame struct {
	// CommandID correlates acknowledgements with this command.  Assigned by
	// the caller; administrative ingress stamps a fresh ksuid-based id per
	// target device.
	CommandID string `json:"command_id"`

	// RequiresAck indicates whether the sender wants to wait for the
	// device's terminal acknowledgement.
	RequiresAck bool `json:"requires_ack"`

	// IssuedAt records when the originating operator action occurred.
	IssuedAt time.Time `json:"issued_at,omitempty"`

	SetClock      *SetClock      `json:"set_clock,omitempty"`
	RequestReboot *RequestReboot `json:"request_reboot,omitempty"`
	UpdateNetwork *UpdateNetwork `json:"update_network,omitempty"`
	RotateScreen  *RotateScreen  `json:"rotate_screen,omitempty"`
}

// SetClock instructs the device to adjust its wall clock.
type SetClock struct {
	SimulatedTime time.Time `json:"simulated_time"`
	Timezone      string    `json:"timezone,omitempty"`
}

// RequestReboot instructs the device to restart itself.
type RequestReboot struct {
	DelaySeconds int    `json:"delay_seconds,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// UpdateNetwork instructs the device to reconfigure its network interface.
type UpdateNetwork struct {
	SSID          string `json:"ssid,omitempty"`
	Password      string `json:"password,omitempty"`
	UseDHCP       bool   `json:"use_dhcp"`
	StaticAddress string `json:"static_address,omitempty"`
}

// RotateScreen instructs the device to change its display orientation.
type RotateScreen struct {
	Orientation string `json:"orientation"`
	Fullscreen  bool   `json:"fullscreen,omitempty"`
}

func (f *CommandFrame) CorrelationID() string {
	return f.CommandID
}

func (f *CommandFrame) NeedsAck() bool {
	return f.RequiresAck
}

func (f *CommandFrame) Kind() Kind {
	return Command
}

// Validate checks the frame's envelope, not its payload.
func (f *CommandFrame) Validate() error {
	if len(f.CommandID) == 0 {
		return ErrorMissingCorrelationID
	}

	return nil
}

// CommandAck reports a command's status from the device back to the hub.
type CommandAck struct {
	// DeviceID identifies the acknowledging device.  Required on the HTTP
	// acknowledge endpoint; the websocket path fills it from the session.
	DeviceID string `json:"device_id,omitempty"`

	// CommandID is the id of the command being acknowledged.
	CommandID string `json:"command_id"`

	Status CommandStatus `json:"status"`

	// Message optionally carries device-supplied detail, most usefully on
	// Failed and Rejected.
	Message string `json:"message,omitempty"`
}

func (a *CommandAck) Device() string {
	return a.DeviceID
}

func (a *CommandAck) CorrelationID() string {
	return a.CommandID
}

func (a *CommandAck) Final() bool {
	return a.Status.Terminal()
}

func (a *CommandAck) Succeeded() bool {
	return a.Status.Success()
}

func (a *CommandAck) StatusText() string {
	return a.Status.String()
}

func (a *CommandAck) Note() string {
	return a.Message
}

// Snapshot always returns nil: command acknowledgements carry no progress
// detail beyond the Received status itself.
func (a *CommandAck) Snapshot() *Progress {
	return nil
}

func (a *CommandAck) Validate() error {
	if len(a.CommandID) == 0 {
		return ErrorMissingCorrelationID
	}

	_, err := ParseCommandStatus(string(a.Status))
	return err
}
