// Package engine is the typed surface over the correlation bridge: one method per
// engine operation.
package engine

import (
	"context"
	"fmt"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// Caller is the part of the bridge the facade needs.
type Caller interface {
	CallInto(ctx context.Context, out any, op string, args ...any) error
}

type Client struct {
	caller Caller
}

func NewClient(c Caller) *Client {
	return &Client{caller: c}
}

// Ready waits for the engine's ready answer; a load failure comes back as an error.
func (c *Client) Ready(ctx context.Context) error {
	var res string
	if err := c.caller.CallInto(ctx, &res, reversidto.OpReady); err != nil {
		return err
	}
	if res != reversidto.ReadyResult {
		return fmt.Errorf("engine not ready: %q", res)
	}
	return nil
}

// GetState returns a fresh snapshot. A nil depth skips evaluation.
func (c *Client) GetState(ctx context.Context, depth *int) (*reversidto.BoardStatus, error) {
	var st reversidto.BoardStatus
	if err := c.caller.CallInto(ctx, &st, reversidto.OpGetState, depth); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("getState: %w", err)
	}
	return &st, nil
}

func (c *Client) IsLegalMove(ctx context.Context, cell int) (bool, error) {
	var ok bool
	err := c.caller.CallInto(ctx, &ok, reversidto.OpIsLegalMove, cell)
	return ok, err
}

func (c *Client) Put(ctx context.Context, cell int) error {
	return c.caller.CallInto(ctx, nil, reversidto.OpPut, cell)
}

func (c *Client) AIPut(ctx context.Context, level int) error {
	return c.caller.CallInto(ctx, nil, reversidto.OpAIPut, level)
}

func (c *Client) Pass(ctx context.Context) error {
	return c.caller.CallInto(ctx, nil, reversidto.OpPass)
}

func (c *Client) IsPass(ctx context.Context) (bool, error) {
	var ok bool
	err := c.caller.CallInto(ctx, &ok, reversidto.OpIsPass)
	return ok, err
}

func (c *Client) IsEnd(ctx context.Context) (bool, error) {
	var ok bool
	err := c.caller.CallInto(ctx, &ok, reversidto.OpIsEnd)
	return ok, err
}

// Undo reports false when there was nothing to undo.
func (c *Client) Undo(ctx context.Context) (bool, error) {
	var ok bool
	err := c.caller.CallInto(ctx, &ok, reversidto.OpUndo)
	return ok, err
}

// Redo reports false when there was nothing to redo.
func (c *Client) Redo(ctx context.Context) (bool, error) {
	var ok bool
	err := c.caller.CallInto(ctx, &ok, reversidto.OpRedo)
	return ok, err
}

func (c *Client) GetRecord(ctx context.Context) (string, error) {
	var rec string
	err := c.caller.CallInto(ctx, &rec, reversidto.OpGetRecord)
	return rec, err
}

func (c *Client) NewGame(ctx context.Context) error {
	return c.caller.CallInto(ctx, nil, reversidto.OpNewGame)
}

func (c *Client) SetHumanOpening(ctx context.Context, id int) error {
	return c.caller.CallInto(ctx, nil, reversidto.OpSetHumanOpening, id)
}
