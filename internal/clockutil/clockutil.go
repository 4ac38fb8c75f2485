// Package clockutil provides the production ports.Clock implementation.
package clockutil

import "time"

// System is the wall-clock ports.Clock used outside of tests.
type System struct{}

func (System) Now() time.Time   { return time.Now() }
func (System) NowUnix() int64   { return time.Now().Unix() }
func (System) NowUnixMs() int64 { return time.Now().UnixMilli() }
