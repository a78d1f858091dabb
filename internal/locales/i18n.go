package locales

import (
	"embed"
	"encoding/json"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init initializes the i18n bundle by loading the embedded language files and
// setting the default language. Calling it again replaces the bundle.
func Init(defaultLangCode string) {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.WithError(err).Warnf("Failed to parse default language code %q, falling back to Ukrainian", defaultLangCode)
		tag = language.Ukrainian
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		log.WithError(err).Fatal("Failed to read embedded locales directory")
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, entry.Name()); err != nil {
			log.WithError(err).Warnf("Failed to load message file %s", entry.Name())
			continue
		}
		loaded++
	}
	if loaded == 0 {
		log.Fatal("No message files loaded from locales")
	}

	mu.Lock()
	bundle = b
	defaultLanguage = tag
	mu.Unlock()
	log.Debugf("i18n bundle initialized with %d file(s), default language %s", loaded, tag)
}

// GetDefaultLanguageTag returns the configured default language tag.
func GetDefaultLanguageTag() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panic("Attempted to get default language tag before i18n bundle initialization")
	}
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences.
// The default language is always appended as the last preference.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panic("Attempted to create localizer before i18n bundle initialization")
	}
	return i18n.NewLocalizer(bundle, append(langPrefs, defaultLanguage.String())...)
}

// DefaultLocalizer returns a localizer for the default language only.
func DefaultLocalizer() *i18n.Localizer {
	return NewLocalizer()
}

// GetMessage retrieves and formats a message by its ID.
// When the message is missing in every preferred language the ID itself is returned.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}, pluralCount *int) string {
	cfg := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}
	if pluralCount != nil {
		cfg.PluralCount = *pluralCount
	}

	msg, err := localizer.Localize(cfg)
	if err != nil {
		log.WithError(err).WithField("message_id", msgID).Error("Failed to localize message")
		return msgID
	}
	return msg
}
