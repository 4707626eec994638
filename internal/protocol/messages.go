// Package protocol defines the JSON message types exchanged over the
// messaging bus: the evaluation request consumed from filter.check and
// the result forms published back. Producers in other services encode
// these shapes; keeping them in one package pins the wire contract.
package protocol

import (
	"encoding/json"

	"github.com/riskguard/filter-app/internal/rule"
)

// CheckRequest is the wire form of one evaluation request. RequestID is
// optional; the service assigns one when absent and echoes it in the
// result.
type CheckRequest struct {
	RequestID        string `json:"request_id"`
	AppID            string `json:"app_id"`
	ChannelID        string `json:"channel_id"`
	AccountID        string `json:"account_id"`
	Text             string `json:"text"`
	Nickname         string `json:"nickname"`
	IP               string `json:"ip"`
	RoleID           string `json:"role_id"`
	ServerID         string `json:"server_id"`
	Fingerprint      string `json:"fingerprint"`
	TextLanguage     string `json:"text_language"`
	NicknameLanguage string `json:"nickname_language"`
}

// Message converts the wire request into the internal message form.
func (r *CheckRequest) Message() *rule.Message {
	return &rule.Message{
		RequestID:   r.RequestID,
		AppID:       r.AppID,
		ChannelID:   r.ChannelID,
		AccountID:   r.AccountID,
		Text:        r.Text,
		Nickname:    r.Nickname,
		IP:          r.IP,
		RoleID:      r.RoleID,
		ServerID:    r.ServerID,
		Fingerprint: r.Fingerprint,
		Languages: rule.LanguagePrediction{
			Text:     r.TextLanguage,
			Nickname: r.NicknameLanguage,
		},
	}
}

// CheckResult is the decode-side view of a published verdict. The detail
// payload is kept raw; consumers that want the evidence decode it into
// the filter package's Detail type.
type CheckResult struct {
	RequestID   string          `json:"request_id"`
	Verdict     string          `json:"verdict"`
	RiskType    int             `json:"risk_type"`
	Description string          `json:"description"`
	Detail      json.RawMessage `json:"detail"`
}

// CheckError is published instead of a result when request validation
// fails.
type CheckError struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}
