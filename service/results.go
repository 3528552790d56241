package service

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"realtime-poll-backend/models"
)

// OptionResult 单个选项的统计结果
type OptionResult struct {
	ID         uint    `json:"id"`
	OptionText string  `json:"option_text"`
	VoteCount  int64   `json:"vote_count"`
	Percentage float64 `json:"percentage"`
}

// ResultsSnapshot 某一时刻的投票结果快照。
// 直接查询和房间广播推送的都是这个结构，两条路径携带同一份数据
type ResultsSnapshot struct {
	PollCode   string         `json:"poll_code"`
	Question   string         `json:"question"`
	TotalVotes int64          `json:"total_votes"`
	CreatedAt  time.Time      `json:"created_at"`
	Options    []OptionResult `json:"options"`
}

// Marshal 序列化快照为JSON
func (s *ResultsSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// GetResults 计算投票的当前结果快照，选项按创建顺序排列。
// 命中快照缓存时直接返回；未命中时在该短码的重建锁内查库回填，
// 防止热点投票的并发重建击穿数据库
func (s *PollService) GetResults(ctx context.Context, pollCode string) (*ResultsSnapshot, error) {
	code := models.NormalizeCode(pollCode)

	if payload, ok := s.snapshots.Get(ctx, code); ok {
		var snapshot ResultsSnapshot
		if err := json.Unmarshal(payload, &snapshot); err == nil {
			return &snapshot, nil
		}
		// 缓存内容损坏，当作未命中处理
		s.snapshots.Invalidate(ctx, code)
	}

	var snapshot *ResultsSnapshot
	err := s.snapshots.WithRebuildLock(ctx, code, func() error {
		// 持锁后再查一次缓存，前一个持锁者可能已经回填
		if payload, ok := s.snapshots.Get(ctx, code); ok {
			var cached ResultsSnapshot
			if err := json.Unmarshal(payload, &cached); err == nil {
				snapshot = &cached
				return nil
			}
		}

		poll, err := s.GetPollByCode(ctx, code)
		if err != nil {
			return err
		}

		snapshot = buildSnapshot(poll)
		if payload, err := snapshot.Marshal(); err == nil {
			s.snapshots.Set(ctx, code, payload)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// GetResultsPayload 返回序列化后的结果快照，供WebSocket入房推送使用
func (s *PollService) GetResultsPayload(ctx context.Context, pollCode string) ([]byte, error) {
	snapshot, err := s.GetResults(ctx, pollCode)
	if err != nil {
		return nil, err
	}
	return snapshot.Marshal()
}

// buildSnapshot 从投票实体构造快照，百分比按每个选项独立取整到一位小数，
// 不做归一化，总和允许因舍入漂移偏离100
func buildSnapshot(poll *models.Poll) *ResultsSnapshot {
	var totalVotes int64
	for _, opt := range poll.Options {
		totalVotes += opt.VoteCount
	}

	options := make([]OptionResult, len(poll.Options))
	for i, opt := range poll.Options {
		percentage := 0.0
		if totalVotes > 0 {
			percentage = roundToOneDecimal(float64(opt.VoteCount) / float64(totalVotes) * 100)
		}
		options[i] = OptionResult{
			ID:         opt.ID,
			OptionText: opt.OptionText,
			VoteCount:  opt.VoteCount,
			Percentage: percentage,
		}
	}

	return &ResultsSnapshot{
		PollCode:   poll.PollCode,
		Question:   poll.Question,
		TotalVotes: totalVotes,
		CreatedAt:  poll.CreatedAt,
		Options:    options,
	}
}

func roundToOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
