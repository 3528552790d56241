package service

import "errors"

var (
	// 业务错误定义
	ErrPollNotFound   = errors.New("poll not found")
	ErrInvalidOption  = errors.New("invalid option selected")
	ErrDuplicateVote  = errors.New("you have already voted")
	ErrRateLimited    = errors.New("too many requests")
	ErrCodeGeneration = errors.New("unable to generate unique poll code")
)

// ValidationError 输入校验失败，Reason可直接展示给调用方
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
