package types

// Modality identifies the sensory channel a memory came from.
// It is a closed set: vision, speech, text, concept.
type Modality string

const (
	ModalityVision  Modality = "vision"
	ModalitySpeech  Modality = "speech"
	ModalityText    Modality = "text"
	ModalityConcept Modality = "concept"
)

// AllModalities lists every modality in selection priority order.
// Selection quotas and prompt formatting iterate this slice so the
// ordering is load-bearing: vision and speech first, concept last.
var AllModalities = []Modality{ModalityVision, ModalitySpeech, ModalityText, ModalityConcept}

// ParseModality maps an ingestion source string to a Modality.
// Unknown or empty sources map to text — the ingestion log is tolerant
// of records produced by newer perception services.
func ParseModality(s string) Modality {
	switch Modality(s) {
	case ModalityVision, ModalitySpeech, ModalityText, ModalityConcept:
		return Modality(s)
	default:
		return ModalityText
	}
}

// Valid reports whether m is one of the four known modalities.
func (m Modality) Valid() bool {
	switch m {
	case ModalityVision, ModalitySpeech, ModalityText, ModalityConcept:
		return true
	}
	return false
}

// String returns the wire representation of the modality.
func (m Modality) String() string {
	return string(m)
}
