package cli

import "github.com/m-mizutani/kaze/pkg/adapter"

var LoadVoiceProfileForTest = loadVoiceProfile

func ProfileLanguageForTest(path, fallback string) (string, error) {
	p, err := loadVoiceProfile(path)
	if err != nil {
		return "", err
	}
	return p.language(fallback), nil
}

func NewLocatorForTest(latitude, longitude string, ipLocation bool) (adapter.Locator, error) {
	cfg := &config{latitude: latitude, longitude: longitude, ipLocation: ipLocation}
	return cfg.newLocator()
}
