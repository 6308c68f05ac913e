package model

// Voice is a synthesizer voice handle as reported by the platform engine.
type Voice struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
}

// Utterance is one playback request handed to the synthesizer.
type Utterance struct {
	Text     string
	Voice    *Voice
	Language string
	Rate     float64
	Pitch    float64
	Volume   float64
}

// RecognitionConfig configures a single recognition session.
type RecognitionConfig struct {
	Language       string
	InterimResults bool
	Continuous     bool
}

// RecognitionSegment is one hypothesis emitted by a recognizer. Segments with
// the same Index replace each other; Final marks a segment that will not
// change anymore.
type RecognitionSegment struct {
	Index int
	Text  string
	Final bool
}
