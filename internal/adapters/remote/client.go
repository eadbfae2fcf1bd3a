// Package remote は端末からリモートの勤怠ストアへ接続するクライアントです。
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ogurasousui/attendance-sync/internal/adapters/wire"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/syncqueue"
	"github.com/ogurasousui/attendance-sync/internal/core/tracker"
)

// Transport は書き込みリクエストの組み立てと送信を担います。
// Do と List は通信失敗を attendance.ErrRemoteUnavailable、サーバ側の拒否を *attendance.RejectedError で返します。
type Transport interface {
	Build(action string, data json.RawMessage) (tracker.Request, error)
	Do(ctx context.Context, req tracker.Request) (wire.Record, error)
	List(ctx context.Context, query wire.ListQuery) ([]wire.Record, error)
	Check(ctx context.Context) error
}

// Client は Transport の上で tracker.RemoteStore と syncqueue.Sender を実装します。
type Client struct {
	transport Transport
}

var (
	_ tracker.RemoteStore = (*Client)(nil)
	_ syncqueue.Sender    = (*Client)(nil)
)

// NewClient は Client を生成します。
func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// PrepareCheckIn は出勤打刻のリクエストを組み立てます。
func (c *Client) PrepareCheckIn(in attendance.CheckInInput) (tracker.Request, error) {
	return c.build(wire.ActionCheckIn, wire.NewCheckIn(in))
}

// PrepareCheckOut は退勤打刻のリクエストを組み立てます。
func (c *Client) PrepareCheckOut(in attendance.CheckOutInput) (tracker.Request, error) {
	return c.build(wire.ActionCheckOut, wire.NewCheckOut(in))
}

// Submit はリクエストを送信し、確定した記録を返します。
func (c *Client) Submit(ctx context.Context, req tracker.Request) (*attendance.Record, error) {
	dto, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	rec, err := dto.Domain()
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Deliver はキューの操作を送信します。
func (c *Client) Deliver(ctx context.Context, op syncqueue.Operation) error {
	_, err := c.Submit(ctx, tracker.Request{
		Endpoint: op.TargetEndpoint,
		Method:   op.Method,
		Headers:  op.Headers,
		Body:     op.SerializedBody,
	})
	return err
}

// List は条件に合う記録を返します。
func (c *Client) List(ctx context.Context, filter attendance.ListRecordsFilter) ([]*attendance.Record, error) {
	dtos, err := c.transport.List(ctx, wire.ListQuery{EmployeeID: filter.EmployeeID, Date: filter.Date, Limit: filter.Limit})
	if err != nil {
		return nil, err
	}
	records := make([]*attendance.Record, 0, len(dtos))
	for _, dto := range dtos {
		rec, err := dto.Domain()
		if err != nil {
			return nil, fmt.Errorf("decode record %s: %w", dto.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Check は疎通を確認します。connectivity.Checker として使えます。
func (c *Client) Check(ctx context.Context) error {
	return c.transport.Check(ctx)
}

func (c *Client) build(action string, payload any) (tracker.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return tracker.Request{}, fmt.Errorf("encode %s: %w", action, err)
	}
	return c.transport.Build(action, data)
}
