// Package protocol implements the framed, packet-based RPC wire format
// shared by cvd and served.
//
// Each exchange is one newline-delimited JSON envelope in each direction:
// read one line, dispatch, write one line back, close. The install and
// remove commands additionally stream progress envelopes ahead of the
// final result. The framing is transport-agnostic: the same
// envelope crosses an AF_UNIX stream, an abstract Linux socket, or a TCP
// connection.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/chefbuild/chef/internal/cheferr"
)

// Command tags the procedure an envelope invokes.
type Command string

const (
	// cvd commands.
	CmdContainerCreate  Command = "container.create"
	CmdContainerSpawn   Command = "container.spawn"
	CmdContainerUpload  Command = "container.upload"
	CmdContainerDestroy Command = "container.destroy"
	CmdContainerStop    Command = "container.stop"
	CmdContainerStatus  Command = "container.status"
	CmdContainerExec    Command = "container.exec"
	CmdContainerUpdate  Command = "container.update"

	// served commands.
	CmdInstall        Command = "install"
	CmdRemove         Command = "remove"
	CmdGetCommand     Command = "get_command"
	CmdIOProgress     Command = "transaction_io_progress"

	// shared commands.
	CmdStatus   Command = "status"
	CmdShutdown Command = "shutdown"
	CmdOK       Command = "ok"
	CmdError    Command = "error"
)

// Envelope is the outer frame of every request and response.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorResult is the payload of a [CmdError] response.
type ErrorResult struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Encode serializes cmd and payload into a single JSON envelope (without a
// trailing newline; callers append the frame delimiter).
func Encode(cmd Command, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
		}
		raw = b
	}

	b, err := json.Marshal(Envelope{Command: cmd, Payload: raw})
	if err != nil {
		return nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return b, nil
}

// Decode parses one newline-delimited JSON envelope frame (the trailing
// newline, if present, is trimmed before parsing).
func Decode(frame []byte) (Envelope, json.RawMessage, error) {
	frame = bytes.TrimRight(frame, "\n")

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, nil, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return env, env.Payload, nil
}

// DecodePayload unmarshals an envelope's payload into T.
func DecodePayload[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, cheferr.Wrapf(cheferr.ErrInvalidArgument, "missing payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}
	return v, nil
}

// EncodeError builds a [CmdError] envelope tagging err's category
// (cheferr.Category) alongside its message, so clients can branch on
// category without string matching.
func EncodeError(err error) ([]byte, error) {
	return Encode(CmdError, &ErrorResult{
		Category: cheferr.Category(err).Error(),
		Message:  err.Error(),
	})
}
