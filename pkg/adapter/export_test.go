package adapter

import (
	"context"
	"time"
)

// WithLocatorClockForTest exposes the locator clock option to tests
func WithLocatorClockForTest(now func() time.Time) IPLocatorOption {
	return withLocatorClock(now)
}

type CommandRunnerForTest = commandRunner

// NewSaySynthesizerForTest builds a say-style synthesizer with a fake runner
func NewSaySynthesizerForTest(run CommandRunnerForTest) Synthesizer {
	return &commandSynthesizer{path: "say", kind: synthSay, run: run}
}

// NewESpeakSynthesizerForTest builds an espeak-style synthesizer with a fake runner
func NewESpeakSynthesizerForTest(run CommandRunnerForTest) Synthesizer {
	return &commandSynthesizer{path: "espeak-ng", kind: synthESpeak, run: run}
}

type TranscriberForTest = transcriber

// NewWhisperRecognizerForTest builds a recognizer with fake recording and
// transcription backends
func NewWhisperRecognizerForTest(client TranscriberForTest, record func(ctx context.Context, path string) error) Recognizer {
	return &whisperRecognizer{
		client:            client,
		record:            record,
		maxDuration:       defaultMaxRecording,
		transcribeTimeout: defaultTranscribeTimeout,
	}
}
