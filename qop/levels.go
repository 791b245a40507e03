// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
)

// MessageLevel is the severity the server attaches to compiler, queue and
// simulation messages.
type MessageLevel int

const (
	// MessageDebug is verbose diagnostic output.
	MessageDebug MessageLevel = iota
	// MessageInfo is a normal informational message.
	MessageInfo
	// MessageWarning may require attention but did not fail the request.
	MessageWarning
	// MessageError accompanies a failed request.
	MessageError
)

func (l MessageLevel) String() string {
	switch l {
	case MessageDebug:
		return "DEBUG"
	case MessageInfo:
		return "INFO"
	case MessageWarning:
		return "WARNING"
	case MessageError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SlogLevel maps l onto the slog level it is logged at.
func (l MessageLevel) SlogLevel() slog.Level {
	switch l {
	case MessageDebug:
		return slog.LevelDebug
	case MessageWarning:
		return slog.LevelWarn
	case MessageError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServerMessage is one human-readable entry returned alongside a response.
type ServerMessage struct {
	Level   MessageLevel `cbor:"1,keyasint,omitempty"`
	Message string       `cbor:"2,keyasint,omitempty"`
}

// logServerMessages writes each message verbatim at its mapped level.
func logServerMessages(ctx context.Context, log *slog.Logger, msgs []ServerMessage) {
	for _, m := range msgs {
		log.Log(ctx, m.Level.SlogLevel(), m.Message)
	}
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
