package cli

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// voiceProfile tunes speech without touching flags. Zero values keep
// defaults.
//
//	language: ja-JP
//	personas: [Kyoko, Otoya]
//	rate: 0.9
//	pitch: 1.0
//	volume: 1.0
type voiceProfile struct {
	Language string   `yaml:"language"`
	Personas []string `yaml:"personas"`
	Rate     float64  `yaml:"rate"`
	Pitch    float64  `yaml:"pitch"`
	Volume   float64  `yaml:"volume"`
}

func loadVoiceProfile(path string) (*voiceProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open voice profile", goerr.V("path", path))
	}
	defer f.Close()

	var profile voiceProfile
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&profile); err != nil {
		return nil, goerr.Wrap(err, "failed to parse voice profile", goerr.V("path", path))
	}

	if profile.Rate < 0 || profile.Rate > 10 {
		return nil, goerr.New("rate must be between 0 and 10", goerr.V("rate", profile.Rate))
	}
	if profile.Pitch < 0 || profile.Pitch > 2 {
		return nil, goerr.New("pitch must be between 0 and 2", goerr.V("pitch", profile.Pitch))
	}
	if profile.Volume < 0 || profile.Volume > 1 {
		return nil, goerr.New("volume must be between 0 and 1", goerr.V("volume", profile.Volume))
	}

	return &profile, nil
}

// language returns the profile language, or fallback when unset
func (p *voiceProfile) language(fallback string) string {
	if p.Language != "" {
		return p.Language
	}
	return fallback
}
