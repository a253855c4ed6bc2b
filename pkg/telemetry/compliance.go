package telemetry

import (
	"encoding/json"
	"strings"
)

// Caller is what the compliance tagger knows about the end user.
type Caller struct {
	UserID         string
	ClientIP       string
	UserAgent      string
	ForwardedFor   string
	ConversationID string
}

// UserDescriptor is the Defender for Cloud user context attached to provider
// calls in the request's user field.
type UserDescriptor struct {
	EndUserID            string         `json:"EndUserId"`
	EndUserIDType        string         `json:"EndUserIdType"`
	SourceIP             string         `json:"SourceIp"`
	SourceRequestHeaders RequestHeaders `json:"SourceRequestHeaders"`
	ApplicationName      string         `json:"ApplicationName"`
	ConversationID       string         `json:"ConversationId,omitempty"`
}

type RequestHeaders struct {
	UserAgent    string `json:"User-Agent,omitempty"`
	ForwardedFor string `json:"X-Forwarded-For,omitempty"`
}

// ComplianceTagger builds the user descriptor. It never touches message content.
type ComplianceTagger struct {
	enabled         bool
	applicationName string
}

func NewComplianceTagger(enabled bool, applicationName string) *ComplianceTagger {
	return &ComplianceTagger{enabled: enabled, applicationName: applicationName}
}

// Descriptor returns the descriptor as JSON, or false when tagging is off or the
// caller is anonymous.
func (t *ComplianceTagger) Descriptor(caller Caller) (string, bool) {
	if t == nil || !t.enabled || strings.TrimSpace(caller.UserID) == "" {
		return "", false
	}
	descriptor := UserDescriptor{
		EndUserID:     caller.UserID,
		EndUserIDType: "Entra",
		SourceIP:      firstForwarded(caller.ForwardedFor, caller.ClientIP),
		SourceRequestHeaders: RequestHeaders{
			UserAgent:    caller.UserAgent,
			ForwardedFor: caller.ForwardedFor,
		},
		ApplicationName: t.applicationName,
		ConversationID:  caller.ConversationID,
	}
	payload, err := json.Marshal(descriptor)
	if err != nil {
		return "", false
	}
	return string(payload), true
}

// firstForwarded returns the original client address from X-Forwarded-For.
func firstForwarded(forwardedFor, fallback string) string {
	if forwardedFor == "" {
		return fallback
	}
	first, _, _ := strings.Cut(forwardedFor, ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return fallback
}
