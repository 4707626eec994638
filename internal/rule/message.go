package rule

// MatchRule selects which message field(s) a list is scanned against.
type MatchRule int

const (
	MatchTextAndNickname MatchRule = 0
	MatchText            MatchRule = 1
	MatchNickname        MatchRule = 2
	MatchIP              MatchRule = 3
	MatchServerID        MatchRule = 4
	MatchRoleAndServerID MatchRule = 5
	MatchAccountID       MatchRule = 6
	MatchFingerprint     MatchRule = 7
)

// Valid reports whether r is a known match rule.
func (r MatchRule) Valid() bool {
	return r >= MatchTextAndNickname && r <= MatchFingerprint
}

// FieldName identifies a scannable message field. Used both in field
// dispatch and in the matched-detail records surfaced to operators.
type FieldName string

const (
	FieldText         FieldName = "text"
	FieldNickname     FieldName = "nickname"
	FieldIP           FieldName = "ip"
	FieldServerID     FieldName = "server_id"
	FieldRoleServerID FieldName = "role_and_server_id"
	FieldAccountID    FieldName = "account_id"
	FieldFingerprint  FieldName = "fingerprint"
)

// LanguagePrediction carries the per-field language codes predicted for a
// message by the upstream language classifier. Only free-text fields get a
// prediction; identifier fields are never language-gated.
type LanguagePrediction struct {
	Text     string
	Nickname string
}

// Message is the normalized moderation request record. The filter pipeline
// mutates Text and Nickname in place during ignore-list stripping, so
// callers that need the original values must keep their own copy.
type Message struct {
	RequestID   string
	AppID       string
	ChannelID   string
	AccountID   string
	Text        string
	Nickname    string
	IP          string
	RoleID      string
	ServerID    string
	Fingerprint string
	Languages   LanguagePrediction
}

// Field is one scannable (value, language) pair produced by match-rule
// dispatch. HasLanguage distinguishes free-text fields, which are gated by
// a list's language scope, from identifier fields, which never are.
type Field struct {
	Name        FieldName
	Value       string
	Language    string
	HasLanguage bool
}

// Fields returns the ordered message fields this match rule scans.
// It is a pure accessor table: no reflection, one case per rule.
func (r MatchRule) Fields(m *Message) []Field {
	switch r {
	case MatchTextAndNickname:
		return []Field{
			{Name: FieldText, Value: m.Text, Language: m.Languages.Text, HasLanguage: true},
			{Name: FieldNickname, Value: m.Nickname, Language: m.Languages.Nickname, HasLanguage: true},
		}
	case MatchText:
		return []Field{{Name: FieldText, Value: m.Text, Language: m.Languages.Text, HasLanguage: true}}
	case MatchNickname:
		return []Field{{Name: FieldNickname, Value: m.Nickname, Language: m.Languages.Nickname, HasLanguage: true}}
	case MatchIP:
		return []Field{{Name: FieldIP, Value: m.IP}}
	case MatchServerID:
		return []Field{{Name: FieldServerID, Value: m.ServerID}}
	case MatchRoleAndServerID:
		return []Field{{Name: FieldRoleServerID, Value: m.ServerID + "_" + m.RoleID}}
	case MatchAccountID:
		return []Field{{Name: FieldAccountID, Value: m.AccountID}}
	case MatchFingerprint:
		return []Field{{Name: FieldFingerprint, Value: m.Fingerprint}}
	}
	return nil
}

// SetField writes a new value into the named message field. Only the
// free-text fields are settable; ignore-list stripping never rewrites
// identifier fields.
func (m *Message) SetField(name FieldName, value string) {
	switch name {
	case FieldText:
		m.Text = value
	case FieldNickname:
		m.Nickname = value
	}
}

// SpeakerKey identifies the message author across requests, used to key
// the recent-chat history buffer.
func (m *Message) SpeakerKey() string {
	return m.AppID + "_" + m.AccountID
}
