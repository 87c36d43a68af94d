package messages

// Message is the base interface for everything carried between execution contexts
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeShowStatus        = "ShowStatus"
	TypeShowAnswers       = "ShowAnswers"
	TypeStartCropMode     = "StartCropMode"
	TypeCroppedImageReady = "CroppedImageReady"
)

// ShowStatus - transient status text for the display sink
type ShowStatus struct {
	Text string
}

func (m ShowStatus) Type() string { return TypeShowStatus }

// ShowAnswers - final text of a run: the answer key or an N/A-prefixed error
type ShowAnswers struct {
	Text string
}

func (m ShowAnswers) Type() string { return TypeShowAnswers }

// StartCropMode - sent by control to begin an interactive crop over a full-frame snapshot
type StartCropMode struct {
	RunID string
	PNG   []byte  // encoded full-frame snapshot
	DPR   float64 // device pixel ratio the snapshot was taken at
}

func (m StartCropMode) Type() string { return TypeStartCropMode }

// CroppedImageReady - sent by presentation when the user finalized a selection
type CroppedImageReady struct {
	RunID string
	PNG   []byte // standalone encoded crop, never a view into the full frame
}

func (m CroppedImageReady) Type() string { return TypeCroppedImageReady }

// Envelope wraps messages with routing metadata
type Envelope struct {
	From    string  // Source context name
	To      string  // Destination context name
	Message Message // The actual message
}

// Context names
const (
	ContextControl      = "control"
	ContextPresentation = "presentation"
)
