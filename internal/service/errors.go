package service

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidInput 表示请求参数不合法（必填项缺失、格式错误等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrItemNotFound 表示 item 不存在。
	ErrItemNotFound = errors.New("item not found")
	// ErrTermHasChildren 表示 term 下仍有子节点，保护删除被拒绝。
	ErrTermHasChildren = errors.New("taxonomy term has children")
	// ErrUnknownTab 表示列表请求引用了未配置的页签。
	ErrUnknownTab = errors.New("unknown filter tab")
	// ErrInternal 表示服务端内部错误，不向调用方暴露细节。
	ErrInternal = errors.New("internal server error")
)
