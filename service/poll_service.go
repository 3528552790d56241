package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"realtime-poll-backend/cache"
	"realtime-poll-backend/config"
	"realtime-poll-backend/limiter"
	"realtime-poll-backend/models"
)

// 短码生成重试上限，全部冲突时返回ErrCodeGeneration
const maxCodeAttempts = 10

// Broadcaster 向某个投票房间的所有订阅者推送快照
type Broadcaster interface {
	Broadcast(pollCode string, payload []byte)
}

// PollService 投票服务，覆盖创建、投票、结果聚合与实时推送的编排。
// 去重和计票的正确性依赖存储层的唯一约束与原子自增，而不是应用层检查
type PollService struct {
	db        *gorm.DB
	cfg       *config.Config
	rateLimit *limiter.SlidingWindow
	snapshots *cache.SnapshotCache
	hub       Broadcaster

	// 短码生成函数，可注入以便测试冲突路径
	generateCode func() string
}

// NewPollService 创建投票服务
func NewPollService(db *gorm.DB, cfg *config.Config, rateLimit *limiter.SlidingWindow, snapshots *cache.SnapshotCache, hub Broadcaster) *PollService {
	return &PollService{
		db:           db,
		cfg:          cfg,
		rateLimit:    rateLimit,
		snapshots:    snapshots,
		hub:          hub,
		generateCode: models.GeneratePollCode,
	}
}

// CreatePoll 创建投票及其全部选项，单个事务内要么全部落库要么全不落库
func (s *PollService) CreatePoll(ctx context.Context, question string, optionTexts []string) (*models.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &ValidationError{Reason: "Question is required"}
	}
	// 长度限制按字符数而不是字节数计，多字节文本不被错杀
	if utf8.RuneCountInString(question) > s.cfg.MaxQuestionLength {
		return nil, &ValidationError{Reason: fmt.Sprintf("Question must be %d characters or less", s.cfg.MaxQuestionLength)}
	}

	if len(optionTexts) < s.cfg.MinOptions {
		return nil, &ValidationError{Reason: fmt.Sprintf("At least %d options are required", s.cfg.MinOptions)}
	}
	if len(optionTexts) > s.cfg.MaxOptions {
		return nil, &ValidationError{Reason: fmt.Sprintf("Maximum %d options allowed", s.cfg.MaxOptions)}
	}

	cleaned := make([]string, 0, len(optionTexts))
	seen := make(map[string]bool, len(optionTexts))
	for _, text := range optionTexts {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, &ValidationError{Reason: "Options cannot be empty"}
		}
		if utf8.RuneCountInString(text) > s.cfg.MaxOptionLength {
			return nil, &ValidationError{Reason: fmt.Sprintf("Each option must be %d characters or less", s.cfg.MaxOptionLength)}
		}
		if seen[text] {
			return nil, &ValidationError{Reason: "Options must be unique"}
		}
		seen[text] = true
		cleaned = append(cleaned, text)
	}

	// 生成短码并落库；并发下两个请求可能同时通过存在性检查，
	// 依赖poll_code唯一索引兜底，冲突时换码重试
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := models.NormalizeCode(s.generateCode())

		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Poll{}).
			Where("poll_code = ?", code).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("检查短码冲突失败: %w", err)
		}
		if count > 0 {
			continue
		}

		poll := &models.Poll{Question: question, PollCode: code}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(poll).Error; err != nil {
				return err
			}
			options := make([]models.Option, len(cleaned))
			for i, text := range cleaned {
				options[i] = models.Option{PollID: poll.ID, OptionText: text}
			}
			if err := tx.Create(&options).Error; err != nil {
				return err
			}
			poll.Options = options
			return nil
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, fmt.Errorf("创建投票失败: %w", err)
		}

		log.Printf("投票创建成功: code=%s, options=%d", code, len(cleaned))
		return poll, nil
	}

	return nil, ErrCodeGeneration
}

// GetPollByCode 按短码查询投票，查询前统一归一化为大写，
// 选项按创建顺序返回
func (s *PollService) GetPollByCode(ctx context.Context, pollCode string) (*models.Poll, error) {
	code := models.NormalizeCode(pollCode)

	var poll models.Poll
	err := s.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.id ASC")
		}).
		Where("poll_code = ?", code).
		First(&poll).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, fmt.Errorf("查询投票失败: %w", err)
	}
	return &poll, nil
}

// RecordVote 记录一票，返回同一事务内回读的最新计票。
// 投票写入和计数自增在同一事务内提交或回滚；
// 去重不做读后检查，直接依赖(poll_id, ip)和(poll_id, browser_token)
// 两组唯一索引，并发的重复提交只会有一个成功
func (s *PollService) RecordVote(ctx context.Context, pollCode string, optionID uint, ipAddress, browserToken string) (*models.Poll, error) {
	code := models.NormalizeCode(pollCode)

	var fresh models.Poll
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var poll models.Poll
		if err := tx.Where("poll_code = ?", code).First(&poll).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPollNotFound
			}
			return err
		}

		var option models.Option
		if err := tx.Where("id = ? AND poll_id = ?", optionID, poll.ID).First(&option).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidOption
			}
			return err
		}

		vote := models.Vote{
			PollID:       poll.ID,
			OptionID:     option.ID,
			IPAddress:    ipAddress,
			BrowserToken: browserToken,
		}
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateVote
			}
			return err
		}

		// 计数自增由存储层计算，避免读改写丢失更新
		if err := tx.Model(&models.Option{}).Where("id = ?", option.ID).
			UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1)).Error; err != nil {
			return err
		}

		// 事务内回读自增后的计票，调用方据此构造快照，
		// 保证本票的响应和广播不会漏掉刚落库的那一票
		return tx.Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.id ASC")
		}).First(&fresh, poll.ID).Error
	})

	if err != nil {
		if errors.Is(err, ErrPollNotFound) || errors.Is(err, ErrInvalidOption) || errors.Is(err, ErrDuplicateVote) {
			return nil, err
		}
		return nil, fmt.Errorf("提交投票失败: %w", err)
	}

	log.Printf("投票成功: poll=%s, option=%d", code, optionID)
	return &fresh, nil
}

// SubmitVote 投票提交编排：限流 -> 落库 -> 写穿快照 -> 广播。
// 快照直接由落库事务内回读的计票构造并覆盖写入缓存，
// 而不是失效后等读路径回填：并发读者可能拿着本票提交前的旧数据回填，
// 回填路径会让本票的响应和广播漏掉刚提交的那一票。
// 返回的快照与广播给房间的快照是同一份数据
func (s *PollService) SubmitVote(ctx context.Context, pollCode string, optionID uint, ipAddress, browserToken string) (*ResultsSnapshot, error) {
	code := models.NormalizeCode(pollCode)

	// 限流拒绝时不触碰存储层
	if !s.rateLimit.Allow(ipAddress) {
		return nil, ErrRateLimited
	}

	poll, err := s.RecordVote(ctx, code, optionID, ipAddress, browserToken)
	if err != nil {
		return nil, err
	}

	snapshot := buildSnapshot(poll)
	if payload, err := snapshot.Marshal(); err == nil {
		s.snapshots.Set(ctx, code, payload)
		if s.hub != nil {
			s.hub.Broadcast(code, payload)
		}
	} else {
		log.Printf("序列化广播快照失败 [%s]: %v", code, err)
	}

	return snapshot, nil
}

// CheckRateLimit 检查该IP是否放行，供投票之外的写入口（如创建投票）复用
func (s *PollService) CheckRateLimit(ipAddress string) bool {
	return s.rateLimit.Allow(ipAddress)
}

// HasVoted 查询某个浏览器令牌在该投票下是否已投过票，返回已投的选项ID
func (s *PollService) HasVoted(ctx context.Context, pollID uint, browserToken string) (bool, uint, error) {
	if browserToken == "" {
		return false, 0, nil
	}

	var vote models.Vote
	err := s.db.WithContext(ctx).
		Where("poll_id = ? AND browser_token = ?", pollID, browserToken).
		First(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("查询投票记录失败: %w", err)
	}
	return true, vote.OptionID, nil
}
