package protocol

import (
	"encoding/json"
	"testing"
)

func TestCheckRequestMessage(t *testing.T) {
	raw := `{
		"request_id": "req-1",
		"app_id": "game1",
		"channel_id": "lobby",
		"account_id": "acct1",
		"text": "hello",
		"nickname": "Player",
		"ip": "10.0.0.1",
		"text_language": "en",
		"nickname_language": "ja"
	}`

	var req CheckRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	msg := req.Message()
	if msg.RequestID != "req-1" || msg.AppID != "game1" || msg.ChannelID != "lobby" {
		t.Errorf("identity fields wrong: %+v", msg)
	}
	if msg.Text != "hello" || msg.Nickname != "Player" || msg.IP != "10.0.0.1" {
		t.Errorf("content fields wrong: %+v", msg)
	}
	if msg.Languages.Text != "en" || msg.Languages.Nickname != "ja" {
		t.Errorf("language predictions wrong: %+v", msg.Languages)
	}
}

func TestCheckRequestMessage_OmittedFields(t *testing.T) {
	var req CheckRequest
	if err := json.Unmarshal([]byte(`{"app_id":"game1","text":"hi"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	msg := req.Message()
	if msg.RequestID != "" {
		t.Errorf("RequestID = %q, want empty for service assignment", msg.RequestID)
	}
	if msg.Languages.Text != "" {
		t.Errorf("Languages.Text = %q, want empty", msg.Languages.Text)
	}
}

func TestCheckResultDetailStaysRaw(t *testing.T) {
	raw := `{"request_id":"r1","verdict":"REJECT","risk_type":210,"description":"abuse","detail":{"matched":[{"no":"x"}]}}`
	var res CheckResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Verdict != "REJECT" || res.RiskType != 210 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Detail) == 0 {
		t.Error("detail payload lost")
	}
}
