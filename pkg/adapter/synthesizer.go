package adapter

import (
	"context"
	"math"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/model"
)

// Synthesizer is the platform text-to-speech engine
type Synthesizer interface {
	// Voices enumerates installed voices
	Voices(ctx context.Context) ([]*model.Voice, error)
	// Speak plays the utterance and blocks until playback ends. Canceling ctx
	// cuts playback short.
	Speak(ctx context.Context, u *model.Utterance) error
}

type synthKind int

const (
	synthSay synthKind = iota
	synthESpeak
)

// defaultWordsPerMinute is the normal pace of both say and espeak-ng
const defaultWordsPerMinute = 175

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type commandSynthesizer struct {
	path string
	kind synthKind
	run  commandRunner
}

var synthCandidates = []string{"say", "espeak-ng", "espeak"}

// NewCommandSynthesizer drives a speech command found in PATH. If command is
// empty, say, espeak-ng and espeak are tried in that order.
func NewCommandSynthesizer(command string) (Synthesizer, error) {
	candidates := synthCandidates
	if command != "" {
		candidates = []string{command}
	}

	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		kind, ok := synthKindOf(path)
		if !ok {
			return nil, goerr.New("unknown speech command", goerr.V("command", name))
		}
		return &commandSynthesizer{path: path, kind: kind, run: runCommand}, nil
	}

	return nil, goerr.Wrap(model.ErrSpeechUnsupported, "no speech command found", goerr.V("candidates", candidates))
}

func synthKindOf(path string) (synthKind, bool) {
	switch filepath.Base(path) {
	case "say":
		return synthSay, true
	case "espeak-ng", "espeak":
		return synthESpeak, true
	default:
		return 0, false
	}
}

func (x *commandSynthesizer) Voices(ctx context.Context) ([]*model.Voice, error) {
	var args []string
	switch x.kind {
	case synthSay:
		args = []string{"-v", "?"}
	case synthESpeak:
		args = []string{"--voices"}
	}

	out, err := x.run(ctx, x.path, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list voices", goerr.V("command", x.path))
	}

	if x.kind == synthSay {
		return parseSayVoices(string(out)), nil
	}
	return parseESpeakVoices(string(out)), nil
}

func (x *commandSynthesizer) Speak(ctx context.Context, u *model.Utterance) error {
	if _, err := x.run(ctx, x.path, x.speakArgs(u)...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return goerr.Wrap(err, "speech command failed", goerr.V("command", x.path))
	}
	return nil
}

func (x *commandSynthesizer) speakArgs(u *model.Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1.0
	}
	wpm := strconv.Itoa(int(math.Round(defaultWordsPerMinute * rate)))

	switch x.kind {
	case synthSay:
		args := []string{"-r", wpm}
		if u.Voice != nil {
			args = append(args, "-v", u.Voice.Name)
		}
		return append(args, "--", u.Text)

	default:
		lang := u.Language
		if u.Voice != nil && u.Voice.Language != "" {
			lang = u.Voice.Language
		}
		args := []string{
			"-s", wpm,
			"-p", strconv.Itoa(clampInt(int(math.Round(u.Pitch*50)), 0, 99)),
			"-a", strconv.Itoa(clampInt(int(math.Round(u.Volume*100)), 0, 200)),
		}
		if lang != "" {
			args = append(args, "-v", strings.ToLower(lang))
		}
		return append(args, "--", u.Text)
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Kyoko               ja_JP    # こんにちは、私の名前はKyokoです。
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([A-Za-z]{2,3}(?:[_-][A-Za-z0-9]+)*)\s+#`)

func parseSayVoices(out string) []*model.Voice {
	var voices []*model.Voice
	for _, line := range strings.Split(out, "\n") {
		m := sayVoiceLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		voices = append(voices, &model.Voice{
			Name:     strings.TrimSpace(m[1]),
			Language: strings.ReplaceAll(m[2], "_", "-"),
		})
	}
	return voices
}

// Pty Language       Age/Gender VoiceName          File                 Other Languages
//
//	5  ja              --/M      Japanese           jpx/ja
func parseESpeakVoices(out string) []*model.Voice {
	var voices []*model.Voice
	for i, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 4 {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}

		v := &model.Voice{
			Name:     fields[3],
			Language: fields[1],
		}
		if _, g, ok := strings.Cut(fields[2], "/"); ok {
			switch strings.ToUpper(g) {
			case "F":
				v.Gender = "female"
			case "M":
				v.Gender = "male"
			}
		}
		voices = append(voices, v)
	}
	return voices
}
