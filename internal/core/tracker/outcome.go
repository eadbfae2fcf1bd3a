package tracker

import "github.com/ogurasousui/attendance-sync/internal/core/attendance"

// Outcome は打刻結果です。Confirmed か Pending のいずれかです。
type Outcome interface {
	// Snapshot は手元で把握している記録を返します。記録がなければ nil です。
	Snapshot() *attendance.Record
	IsPending() bool
	sealed()
}

// Confirmed はリモートストアが確定させた記録です。Record が nil の場合は当日の記録がないことを表します。
type Confirmed struct {
	Record *attendance.Record
}

func (c Confirmed) Snapshot() *attendance.Record { return c.Record.Clone() }
func (Confirmed) IsPending() bool                { return false }
func (Confirmed) sealed()                        {}

// Pending はオフライン中に手元で予測した記録です。OperationID のキュー送信後に確定します。
type Pending struct {
	Record      *attendance.Record
	OperationID string
}

func (p Pending) Snapshot() *attendance.Record { return p.Record.Clone() }
func (Pending) IsPending() bool                { return true }
func (Pending) sealed()                        {}
