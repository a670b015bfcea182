package inventory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"backpack-quoter/risk"
)

// PositionSource 提供交易所侧的持仓查询。
type PositionSource interface {
	Position() (qty float64, entryPrice float64, err error)
}

// Syncer 按固定间隔把交易所持仓镜像到本地 Tracker。
type Syncer struct {
	Source   PositionSource
	Tracker  *Tracker
	Interval time.Duration
	Clock    risk.Clock
	Logger   *zap.Logger

	lastSync time.Time
}

// Sync 在间隔未到时直接返回 (false, nil)；到期后查询交易所并镜像。
// 查询失败只记录并返回错误，旧值保留，调用方可带着陈旧持仓继续。
func (s *Syncer) Sync() (bool, error) {
	now := s.Clock.Now()
	if !s.lastSync.IsZero() && now.Sub(s.lastSync) < s.Interval {
		return false, nil
	}

	qty, entry, err := s.Source.Position()
	if err != nil {
		s.Logger.Error("position sync failed", zap.Error(err))
		return false, fmt.Errorf("sync position: %w", err)
	}

	s.Tracker.SetReal(qty, entry)
	s.lastSync = now
	return true, nil
}
