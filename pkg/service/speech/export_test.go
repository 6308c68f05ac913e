package speech

import "github.com/m-mizutani/kaze/pkg/model"

// SelectVoiceForTest exposes selectVoice to tests
func SelectVoiceForTest(voices []*model.Voice, language string, personas []string) *model.Voice {
	return selectVoice(voices, language, personas)
}
