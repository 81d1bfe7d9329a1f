package agent

import "errors"

var (
	// ErrGeneratorNotSet 未配置生成器
	ErrGeneratorNotSet = errors.New("agent generator not set")

	// ErrConfigInvalid 配置无效
	ErrConfigInvalid = errors.New("invalid agent config")
)
