package frame

// ContentFrame is a content deployment pushed down a device's content
// stream: an opaque descriptor plus the media manifest the device should
// fetch and verify.
type ContentFrame struct {
	// DeliveryID correlates acknowledgements with this delivery.  Assigned
	// by the caller; administrative ingress stamps a fresh ksuid-based id
	// per target device.
	DeliveryID string `json:"delivery_id"`

	// RequiresAck indicates whether the sender wants to wait for the
	// device's terminal acknowledgement.
	RequiresAck bool `json:"requires_ack"`

	// Content is the playlist or layout descriptor.  Opaque to the hub.
	Content map[string]interface{} `json:"content,omitempty"`

	// Media lists the assets referenced by Content.
	Media []Media `json:"media,omitempty"`
}

// Media describes one downloadable asset in a content delivery.
type Media struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum,omitempty"`
	URL      string `json:"url"`
}

func (f *ContentFrame) CorrelationID() string {
	return f.DeliveryID
}

func (f *ContentFrame) NeedsAck() bool {
	return f.RequiresAck
}

func (f *ContentFrame) Kind() Kind {
	return Content
}

// Validate checks the frame's envelope, not its manifest.
func (f *ContentFrame) Validate() error {
	if len(f.DeliveryID) == 0 {
		return ErrorMissingCorrelationID
	}

	return nil
}

// MediaState records the fate of one media item within a delivery.
type MediaState struct {
	MediaID string `json:"media_id"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// Media item states reported in acknowledgement progress snapshots.
const (
	MediaOK     = "media_ok"
	MediaFailed = "media_failed"
)

// Progress is a point-in-time snapshot of a content delivery, carried by
// InProgress and terminal content acknowledgements.
type Progress struct {
	Percent        int          `json:"percent"`
	TotalMedia     int          `json:"total_media"`
	CompletedMedia int          `json:"completed_media"`
	FailedMedia    int          `json:"failed_media"`
	PerMediaState  []MediaState `json:"per_media_state,omitempty"`
}

// ContentAck reports a delivery's status from the device back to the hub.
type ContentAck struct {
	// DeviceID identifies the acknowledging device.  Required on the HTTP
	// acknowledge endpoint; the websocket path fills it from the session.
	DeviceID string `json:"device_id,omitempty"`

	// DeliveryID is the id of the delivery being acknowledged.
	DeliveryID string `json:"delivery_id"`

	Status ContentStatus `json:"status"`

	// Message optionally carries device-supplied detail.
	Message string `json:"message,omitempty"`

	// Progress optionally snapshots per-media state.  Most useful on
	// InProgress and Partial.
	Progress *Progress `json:"progress,omitempty"`
}

func (a *ContentAck) Device() string {
	return a.DeviceID
}

func (a *ContentAck) CorrelationID() string {
	return a.DeliveryID
}

func (a *ContentAck) Final() bool {
	return a.Status.Terminal()
}

func (a *ContentAck) Succeeded() bool {
	return a.Status.Success()
}

func (a *ContentAck) StatusText() string {
	return a.Status.String()
}

func (a *ContentAck) Note() string {
	return a.Message
}

func (a *ContentAck) Snapshot() *Progress {
	return a.Progress
}

func (a *ContentAck) Validate() error {
	if len(a.DeliveryID) == 0 {
		return ErrorMissingCorrelationID
	}

	_, err := ParseContentStatus(string(a.Status))
	return err
}
