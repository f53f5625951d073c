package telephony

import (
	"fmt"
	"strconv"

	"github.com/twilio/twilio-go/twiml"
)

// Voice defaults used when none is configured.
const (
	DefaultVoice    = "Polly.Joanna"
	DefaultLanguage = "en-US"
)

// RecordMaxSeconds bounds the callee's recorded answer.
const RecordMaxSeconds = 30

const (
	recordPrompt = "Please tell us briefly about your experience after the beep."
	goodbye      = "Thank you for your response. Goodbye!"
)

// Voice selects the speech synthesis voice and language of a script.
type Voice struct {
	Name     string
	Language string
}

func (v Voice) orDefault() Voice {
	if v.Name == "" {
		v.Name = DefaultVoice
	}
	if v.Language == "" {
		v.Language = DefaultLanguage
	}
	return v
}

func (v Voice) say(message string) *twiml.VoiceSay {
	v = v.orDefault()
	return &twiml.VoiceSay{
		Message:  message,
		Voice:    v.Name,
		Language: v.Language,
	}
}

// SayScript returns a document that speaks message once.
func SayScript(v Voice, message string) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{v.say(message)})
	if err != nil {
		return "", fmt.Errorf("telephony: build say script: %w", err)
	}
	return doc, nil
}

// RecordScript speaks message, then records up to RecordMaxSeconds with a
// beep and posts the recording to actionURL.
func RecordScript(v Voice, message, actionURL string) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{
		v.say(message),
		v.say(recordPrompt),
		&twiml.VoiceRecord{
			MaxLength: strconv.Itoa(RecordMaxSeconds),
			PlayBeep:  "true",
			Action:    actionURL,
			Method:    "POST",
		},
	})
	if err != nil {
		return "", fmt.Errorf("telephony: build record script: %w", err)
	}
	return doc, nil
}

// GoodbyeScript thanks the callee and hangs up.
func GoodbyeScript(v Voice) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{
		v.say(goodbye),
		&twiml.VoiceHangup{},
	})
	if err != nil {
		return "", fmt.Errorf("telephony: build goodbye script: %w", err)
	}
	return doc, nil
}
