package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

func TestDecode_BareStringPayloads(t *testing.T) {
	req := require.New(t)

	ev, err := Decode([]byte(`{"event":"user:online","data":"alice"}`))
	req.NoError(err)
	req.Equal(UserOnline{UserID: "alice"}, ev)

	ev, err = Decode([]byte(`{"event":"conversation:join","data":"conv-1"}`))
	req.NoError(err)
	req.Equal(ConversationJoin{ConversationID: "conv-1"}, ev)
}

func TestDecode_MessageSend(t *testing.T) {
	req := require.New(t)

	frame := `{"event":"message:send","data":{"conversationId":"c1","senderId":"alice","tempId":"temp-1","message":{"content":"hi"}}}`
	ev, err := Decode([]byte(frame))
	req.NoError(err)

	send, ok := ev.(MessageSend)
	req.True(ok)
	req.Equal("c1", send.ConversationID)
	req.Equal("hi", send.Message.Content)
	req.Equal("temp-1", send.TempID)
	req.Empty(send.RecipientIDs)
}

func TestDecode_ReceiptEventsCarryKind(t *testing.T) {
	req := require.New(t)

	ev, err := Decode([]byte(`{"event":"message:seen","data":{"conversationId":"c1","messageIds":["m1","m2"],"userId":"bob"}}`))
	req.NoError(err)
	report := ev.(ReceiptReport)
	req.Equal(models.StatusSeen, report.Event)
	req.Equal([]string{"m1", "m2"}, report.MessageIDs)

	ev, err = Decode([]byte(`{"event":"message:delivered","data":{"conversationId":"c1","messageIds":["m1"],"userId":"bob"}}`))
	req.NoError(err)
	req.Equal(models.StatusDelivered, ev.(ReceiptReport).Event)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]struct {
		frame string
		want  error
	}{
		"not json":          {`{"event":`, ErrMalformed},
		"no event":          {`{"data":"x"}`, ErrMalformed},
		"unknown event":     {`{"event":"room:nuke","data":{}}`, ErrUnknownEvent},
		"missing data":      {`{"event":"user:online"}`, ErrMalformed},
		"wrong data type":   {`{"event":"user:online","data":{"id":"alice"}}`, ErrMalformed},
		"empty identity":    {`{"event":"user:online","data":""}`, ErrInvalid},
		"empty content":     {`{"event":"message:send","data":{"conversationId":"c1","senderId":"a","tempId":"t","message":{"content":""}}}`, ErrInvalid},
		"no temp id":        {`{"event":"message:send","data":{"conversationId":"c1","senderId":"a","message":{"content":"x"}}}`, ErrInvalid},
		"empty receipt ids": {`{"event":"message:seen","data":{"conversationId":"c1","messageIds":[],"userId":"b"}}`, ErrInvalid},
		"blank receipt id":  {`{"event":"message:seen","data":{"conversationId":"c1","messageIds":[""],"userId":"b"}}`, ErrInvalid},
		"typing no user":    {`{"event":"typing:start","data":{"conversationId":"c1"}}`, ErrInvalid},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEncode_StatusEventName(t *testing.T) {
	req := require.New(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	frame, err := Encode(MessageStatus{MessageIDs: []string{"m1"}, UserID: "bob", Status: models.StatusSeen, Timestamp: ts})
	req.NoError(err)

	var env Envelope
	req.NoError(json.Unmarshal(frame, &env))
	req.Equal(EventMessageStatusSeen, env.Event)
	req.JSONEq(`{"messageIds":["m1"],"userId":"bob","status":"seen","timestamp":"2024-05-01T12:00:00Z"}`, string(env.Data))

	out, err := DecodeOutbound(frame)
	req.NoError(err)
	req.Equal(models.StatusSeen, out.(MessageStatus).Status)
}

func TestEncode_InboundForClients(t *testing.T) {
	req := require.New(t)

	frame, err := Encode(UserOnline{UserID: "alice"})
	req.NoError(err)
	req.JSONEq(`{"event":"user:online","data":"alice"}`, string(frame))

	frame, err = Encode(ReceiptReport{ConversationID: "c1", MessageIDs: []string{"m1"}, UserID: "bob", Event: models.StatusDelivered})
	req.NoError(err)
	req.JSONEq(`{"event":"message:delivered","data":{"conversationId":"c1","messageIds":["m1"],"userId":"bob"}}`, string(frame))
}

func TestDecodeOutbound_TypingOmitsEmptyName(t *testing.T) {
	req := require.New(t)

	frame, err := Encode(TypingUser{ConversationID: "c1", UserID: "bob", IsTyping: true})
	req.NoError(err)
	req.NotContains(string(frame), "userName")

	out, err := DecodeOutbound(frame)
	req.NoError(err)
	req.Equal(TypingUser{ConversationID: "c1", UserID: "bob", IsTyping: true}, out)
}
