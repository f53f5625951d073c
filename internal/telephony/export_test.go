package telephony

import twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

// CreateCallFunc adapts a function to the REST subset used by TwilioCaller.
type CreateCallFunc func(*twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)

func (f CreateCallFunc) CreateCall(p *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	return f(p)
}

// NewTwilioCallerForTest returns a TwilioCaller that sends requests to fn
// instead of the Twilio API.
func NewTwilioCallerForTest(accountSID, authToken string, fn CreateCallFunc) *TwilioCaller {
	c := NewTwilioCaller(accountSID, authToken)
	c.creator = fn
	return c
}
