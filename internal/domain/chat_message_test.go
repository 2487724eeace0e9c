package domain

import (
	"errors"
	"testing"
)

func TestChatMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  ChatMessage
		want error
	}{
		{
			name: "private ok",
			msg:  ChatMessage{Type: MessageTypePrivateChat, SenderID: 42, ReceiverID: Int64Ptr(7), Content: "hola"},
		},
		{
			name: "group ok",
			msg:  ChatMessage{Type: MessageTypeGroupChat, SenderID: 42, GroupID: Int64Ptr(5), Content: "hola"},
		},
		{
			name: "missing sender",
			msg:  ChatMessage{Type: MessageTypePrivateChat, ReceiverID: Int64Ptr(7), Content: "hola"},
			want: ErrMissingSender,
		},
		{
			name: "blank content",
			msg:  ChatMessage{Type: MessageTypePrivateChat, SenderID: 42, ReceiverID: Int64Ptr(7), Content: "   "},
			want: ErrEmptyContent,
		},
		{
			name: "private without receiver",
			msg:  ChatMessage{Type: MessageTypePrivateChat, SenderID: 42, Content: "hola"},
			want: ErrMissingReceiver,
		},
		{
			name: "private with group",
			msg:  ChatMessage{Type: MessageTypePrivateChat, SenderID: 42, ReceiverID: Int64Ptr(7), GroupID: Int64Ptr(5), Content: "hola"},
			want: ErrAmbiguousTarget,
		},
		{
			name: "group without id",
			msg:  ChatMessage{Type: MessageTypeGroupChat, SenderID: 42, GroupID: Int64Ptr(0), Content: "hola"},
			want: ErrMissingGroup,
		},
		{
			name: "group with receiver",
			msg:  ChatMessage{Type: MessageTypeGroupChat, SenderID: 42, ReceiverID: Int64Ptr(7), GroupID: Int64Ptr(5), Content: "hola"},
			want: ErrAmbiguousTarget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMessageTypeClassification(t *testing.T) {
	if MessageType("typing").Valid() {
		t.Fatalf("expected unknown type to be invalid")
	}
	for _, typ := range []MessageType{MessageTypeHeartbeat, MessageTypeSystem, MessageTypeConnect} {
		if !typ.Valid() || typ.Conversational() {
			t.Fatalf("%s should be valid and not conversational", typ)
		}
	}
	if !MessageTypePrivateChat.Conversational() || !MessageTypeGroupChat.Conversational() {
		t.Fatalf("chat types must be conversational")
	}
	if MessageStatus("lost").Valid() || !MessageStatusRead.Valid() {
		t.Fatalf("unexpected status validation")
	}
}
