package calls

import (
	"fmt"
	"strings"
)

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// CallRequest is the body of POST /call_user.
type CallRequest struct {
	UserID      string `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// missingFields lists the required fields that are empty.
func (r CallRequest) missingFields() []string {
	var missing []string
	if strings.TrimSpace(r.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(r.PhoneNumber) == "" {
		missing = append(missing, "phone_number")
	}
	if strings.TrimSpace(r.Message) == "" {
		missing = append(missing, "message")
	}
	return missing
}

// CallResponse is the 200 body of POST /call_user.
type CallResponse struct {
	Status      string `json:"status"`
	CallSID     string `json:"call_sid"`
	UserID      string `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Result status values of GET /get_call_result.
const (
	ResultPending = "pending"
	ResultDone    = "done"
)

// CallResultResponse is the body of GET /get_call_result.
type CallResultResponse struct {
	Status  string `json:"status"`
	UserID  string `json:"user_id"`
	Summary string `json:"summary,omitempty"`
}

// OutreachMessage is the text spoken to an at-risk user.
func OutreachMessage(userID string) string {
	return fmt.Sprintf("Hi user %s, we noticed a decline in your purchase activity from brand x, "+
		"We would like to check if you are facing any issues.", userID)
}
