// Package telephony places outbound voice calls through Twilio and builds
// the TwiML documents those calls play.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrMissingCredentials is returned by the first PlaceCall when the account
// SID or auth token was not configured.
var ErrMissingCredentials = errors.New("telephony: missing Twilio credentials")

// CallParams describes one outbound call. Exactly one of Twiml and URL should
// be set: Twiml is played inline, URL is fetched by Twilio when the callee
// answers.
type CallParams struct {
	To    string
	From  string
	Twiml string
	URL   string
}

// Caller places calls. Implementations must be safe for concurrent use.
type Caller interface {
	PlaceCall(ctx context.Context, p CallParams) (sid string, err error)
}

// callCreator is the subset of the Twilio REST API used here.
type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioCaller is the Caller backed by the twilio-go SDK.
type TwilioCaller struct {
	accountSID string
	authToken  string

	once    sync.Once
	creator callCreator
}

// NewTwilioCaller returns a Caller for the given account. Credentials are not
// checked here: a missing SID or token surfaces as ErrMissingCredentials on
// the first call.
func NewTwilioCaller(accountSID, authToken string) *TwilioCaller {
	return &TwilioCaller{
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
	}
}

func (c *TwilioCaller) api() callCreator {
	c.once.Do(func() {
		if c.creator != nil {
			return
		}
		rc := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: c.accountSID,
			Password: c.authToken,
		})
		c.creator = rc.Api
	})
	return c.creator
}

// PlaceCall makes one attempt to create the call and returns its SID.
// The SDK does not take a context; ctx is checked before the request.
func (c *TwilioCaller) PlaceCall(ctx context.Context, p CallParams) (string, error) {
	if c.accountSID == "" || c.authToken == "" {
		return "", ErrMissingCredentials
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("telephony: place call: %w", err)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(p.To)
	params.SetFrom(p.From)
	switch {
	case p.Twiml != "":
		params.SetTwiml(p.Twiml)
	case p.URL != "":
		params.SetUrl(p.URL)
	default:
		return "", errors.New("telephony: place call: neither twiml nor url set")
	}

	resp, err := c.api().CreateCall(params)
	if err != nil {
		var restErr *twilioClient.TwilioRestError
		if errors.As(err, &restErr) {
			return "", fmt.Errorf("telephony: twilio error %d (status %d): %s",
				restErr.Code, restErr.Status, restErr.Message)
		}
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("telephony: create call: response has no sid")
	}
	return *resp.Sid, nil
}
