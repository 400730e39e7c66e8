package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ege-ayan/discloned/internal/model"
	"github.com/ege-ayan/discloned/internal/realtime"
)

func TestFormatEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 45, 123000000, time.Local)

	raw := func(v any) json.RawMessage {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return data
	}

	tests := []struct {
		name    string
		event   string
		data    json.RawMessage
		verbose bool
		want    string
	}{
		{
			name:  "channel message",
			event: model.ChatMessagesKey("c1"),
			data:  raw(model.Message{ID: "m1", Content: "hi", MemberID: "mem1", ChannelID: "c1"}),
			want:  `[12:30:45.123] chat:c1:messages message m1 in c1 from mem1: "hi"`,
		},
		{
			name:  "deleted conversation message",
			event: model.ChatUpdateKey("v1"),
			data:  raw(model.Message{ID: "m2", ConversationID: "v1", Deleted: true}),
			want:  `[12:30:45.123] chat:v1:messages:update message m2 deleted in v1`,
		},
		{
			name:  "member role change",
			event: model.ServerMembersKey("s1"),
			data:  raw(model.Member{ID: "mem1", ServerID: "s1", Role: model.RoleModerator}),
			want:  `[12:30:45.123] server:s1:members member mem1 in s1 is MODERATOR`,
		},
		{
			name:  "member with unknown role",
			event: model.ServerMembersKey("s1"),
			data:  raw(model.Member{ID: "mem1", ServerID: "s1", Role: "OWNER"}),
			want:  `[12:30:45.123] server:s1:members member mem1 in s1 is unknown`,
		},
		{
			name:  "undecodable chat payload",
			event: model.ChatMessagesKey("c1"),
			data:  json.RawMessage(`[1,2]`),
			want:  `[12:30:45.123] chat:c1:messages (5 bytes)`,
		},
		{
			name:  "other event",
			event: "typing",
			data:  json.RawMessage(`{"a":1}`),
			want:  `[12:30:45.123] typing (7 bytes)`,
		},
		{
			name:    "verbose",
			event:   "typing",
			data:    json.RawMessage(`{"a":1}`),
			verbose: true,
			want:    `[12:30:45.123] typing {"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := realtime.Message{Event: tt.event, Data: tt.data, ReceivedAt: at}
			if got := formatEvent(msg, tt.verbose); got != tt.want {
				t.Errorf("formatEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}
