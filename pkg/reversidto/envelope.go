package reversidto

import (
	"encoding/json"
	"fmt"
)

// Engine operation names carried in Envelope.Op.
const (
	OpGetState        = "getState"
	OpIsLegalMove     = "isLegalMove"
	OpPut             = "put"
	OpAIPut           = "aiPut"
	OpPass            = "pass"
	OpIsPass          = "isPass"
	OpIsEnd           = "isEnd"
	OpUndo            = "undo"
	OpRedo            = "redo"
	OpGetRecord       = "getRecord"
	OpNewGame         = "newGame"
	OpSetHumanOpening = "setHumanOpening"

	// OpReady is answered once the engine has loaded its evaluator.
	OpReady = "ready"
)

// ReadyResult is the result payload of a successful OpReady call.
const ReadyResult = "ready"

// Envelope is an outbound request crossing the message boundary.
type Envelope struct {
	Op   string            `json:"operationName"`
	Args []json.RawMessage `json:"args"`
	ID   string            `json:"id"`

	// ReplyTo is set by transports without a connection of their own (pub/sub).
	ReplyTo string `json:"replyTo,omitempty"`
}

// Reply is an inbound response. Error is non-empty when the engine failed the call.
type Reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	ID     string          `json:"id"`
	Error  string          `json:"error,omitempty"`
}

// NewEnvelope marshals args into an envelope.
func NewEnvelope(op, id string, args ...any) (Envelope, error) {
	env := Envelope{Op: op, ID: id, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal arg %d of %s: %w", i, op, err)
		}
		env.Args = append(env.Args, raw)
	}
	return env, nil
}

// Arg decodes argument i into out.
func (e Envelope) Arg(i int, out any) error {
	if i < 0 || i >= len(e.Args) {
		return fmt.Errorf("%s: missing argument %d", e.Op, i)
	}
	if err := json.Unmarshal(e.Args[i], out); err != nil {
		return fmt.Errorf("%s: decode argument %d: %w", e.Op, i, err)
	}
	return nil
}

// ResultReply builds a successful reply for id.
func ResultReply(id string, result any) Reply {
	if result == nil {
		return Reply{ID: id}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return ErrorReply(id, fmt.Errorf("marshal result: %w", err))
	}
	return Reply{ID: id, Result: raw}
}

// ErrorReply builds a failed reply for id.
func ErrorReply(id string, err error) Reply {
	return Reply{ID: id, Error: err.Error()}
}

// RemoteError is returned to callers when the engine answered with an error.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Op == "" {
		return "engine: " + e.Message
	}
	return fmt.Sprintf("engine %s: %s", e.Op, e.Message)
}
