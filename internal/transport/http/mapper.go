package http

import (
	"encoding/json"

	"github.com/vovakirdan/chatgenie-server/internal/core"
	"github.com/vovakirdan/chatgenie-server/internal/proto"
	"github.com/vovakirdan/chatgenie-server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeGetUsers:
		return core.Command{Kind: core.CommandRequestPresence}, nil
	case proto.InboundTypeMessage:
		var msg proto.ClientMessageData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &msg); err != nil {
				return core.Command{}, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid message payload"}
			}
		}
		return core.Command{Kind: core.CommandClientMessage, Text: msg.Content}, nil
	case proto.InboundTypeHello:
		return core.Command{}, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already authenticated"}
	default:
		return core.Command{}, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventPresence:
		users := make([]proto.UserEntry, 0, len(event.Presence))
		for _, entry := range event.Presence {
			users = append(users, userEntry(entry))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUsers,
			Data:  users,
		}
	case core.EventMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data:  messagePayload(event.Message),
		}
	case core.EventError:
		if event.Error == nil {
			return errorOutbound(core.ErrCodeInternal, "unknown error")
		}
		return errorOutbound(event.Error.Code, event.Error.Message)
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func errorOutbound(code, msg string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	}
}

func userEntry(entry core.PresenceEntry) proto.UserEntry {
	ue := proto.UserEntry{ID: entry.UserID, Username: entry.Username}
	if entry.Client != nil {
		ue.ConnectionID = entry.Client.ID
	}
	return ue
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:         msg.ID,
		Content:    msg.Content,
		Type:       string(msg.Type),
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		ChannelID:  msg.ChannelID,
		CreatedAt:  msg.CreatedAt,
		Sender: proto.Sender{
			ID:       msg.SenderID,
			Username: msg.SenderUsername,
		},
	}
}

func messagePayloads(msgs []*store.Message) []proto.MessagePayload {
	out := make([]proto.MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messagePayload(msg))
	}
	return out
}
