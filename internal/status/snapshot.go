// Package status publishes account, position and notice snapshots to a display consumer
// without ever blocking the trading path.
package status

import (
	"time"

	"livetrader-go/internal/execution"
)

// Snapshot is an immutable view handed to the display. Producers never mutate one after Publish.
type Snapshot struct {
	Seq       uint64               `json:"seq"`
	Time      time.Time            `json:"time"`
	Account   execution.Account    `json:"account"`
	Positions []execution.Position `json:"positions"`
	Orders    []execution.Order    `json:"orders"`
	Notices   []Notice             `json:"notices"`
	Err       string               `json:"error,omitempty"`
}

// NoticeKind categorizes operator-visible events.
type NoticeKind string

const (
	FeedDown      NoticeKind = "feed_down"
	FeedUp        NoticeKind = "feed_up"
	OrderPlaced   NoticeKind = "order_placed"
	OrderRejected NoticeKind = "order_rejected"
	StopTriggered NoticeKind = "stop_triggered"
)

// Notice is one operator-visible event.
type Notice struct {
	Seq     uint64     `json:"seq"`
	Time    time.Time  `json:"time"`
	Kind    NoticeKind `json:"kind"`
	Symbol  string     `json:"symbol,omitempty"`
	Message string     `json:"message"`
}
