package adapter

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

// Recognizer is the platform speech-to-text engine. Recognize runs one
// session and blocks until it ends; canceling ctx ends the session early but
// still delivers what was heard so far.
type Recognizer interface {
	Recognize(ctx context.Context, cfg model.RecognitionConfig, onSegment func(model.RecognitionSegment)) error
}

type transcriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

type recordFunc func(ctx context.Context, path string) error

type whisperRecognizer struct {
	client            transcriber
	record            recordFunc
	maxDuration       time.Duration
	transcribeTimeout time.Duration
}

const (
	// a WAV header alone is 44 bytes; anything this small holds no audio
	minRecordingBytes = 1024

	defaultMaxRecording      = 30 * time.Second
	defaultTranscribeTimeout = 30 * time.Second
)

var recorderCandidates = []string{"rec", "arecord"}

// NewWhisperRecognizer records from the microphone with sox (rec) or arecord
// and transcribes with the OpenAI Whisper API.
func NewWhisperRecognizer(apiKey, command string) (Recognizer, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrSpeechUnsupported, "OpenAI API key is required for speech input")
	}

	candidates := recorderCandidates
	if command != "" {
		candidates = []string{command}
	}

	x := &whisperRecognizer{
		client:            openai.NewClient(apiKey),
		maxDuration:       defaultMaxRecording,
		transcribeTimeout: defaultTranscribeTimeout,
	}

	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		x.record = commandRecorder(path, x.maxDuration)
		return x, nil
	}

	return nil, goerr.Wrap(model.ErrSpeechUnsupported, "no recording command found", goerr.V("candidates", candidates))
}

func commandRecorder(path string, maxDuration time.Duration) recordFunc {
	seconds := int(maxDuration.Seconds())

	return func(ctx context.Context, out string) error {
		var args []string
		switch filepath.Base(path) {
		case "arecord":
			args = []string{"-q", "-f", "S16_LE", "-c", "1", "-r", "16000", "-d", strconv.Itoa(seconds), out}
		default:
			// stop after two seconds of silence once speech has started
			args = []string{"-q", "-c", "1", "-r", "16000", out,
				"silence", "1", "0.1", "1%", "1", "2.0", "1%",
				"trim", "0", strconv.Itoa(seconds)}
		}

		cmd := exec.CommandContext(ctx, path, args...)
		// let the recorder finalize the file instead of killing it
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
		cmd.WaitDelay = 2 * time.Second

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if strings.Contains(strings.ToLower(stderr.String()), "permission denied") {
				return goerr.Wrap(model.ErrSpeechPermissionDenied, "recorder cannot open the microphone",
					goerr.V("stderr", stderr.String()))
			}
			return goerr.Wrap(err, "recording failed", goerr.V("command", path), goerr.V("stderr", stderr.String()))
		}
		return nil
	}
}

func (x *whisperRecognizer) Recognize(ctx context.Context, cfg model.RecognitionConfig, onSegment func(model.RecognitionSegment)) error {
	dir, err := os.MkdirTemp("", "kaze-rec-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "speech.wav")
	if err := x.record(ctx, path); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() < minRecordingBytes {
		return model.ErrNoSpeech
	}

	// a stopped session still gets its transcription
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.transcribeTimeout)
	defer cancel()

	resp, err := x.client.CreateTranscription(tctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
		Language: primaryLanguage(cfg.Language),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to transcribe speech")
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return model.ErrNoSpeech
	}

	onSegment(model.RecognitionSegment{Index: 0, Text: text, Final: true})
	return nil
}
