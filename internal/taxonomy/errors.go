package taxonomy

import (
	"github.com/cockroachdb/errors"
)

// 哨兵错误：都是调用方可恢复的校验类错误，由 handler 层映射为用户可见的提示。
var (
	ErrDuplicateKey      = errors.New("taxonomy key already registered")
	ErrNotFound          = errors.New("taxonomy not found")
	ErrInvalidDefinition = errors.New("invalid taxonomy definition")
	ErrUnknownTaxonomy   = errors.New("unknown taxonomy")
	ErrUnknownTerm       = errors.New("unknown taxonomy term")
	ErrCycleDetected     = errors.New("taxonomy term parent would create a cycle")
	ErrNotHierarchical   = errors.New("taxonomy is not hierarchical")
	ErrHierarchyLocked   = errors.New("hierarchical flag cannot change while terms exist")
	ErrStorage           = errors.New("taxonomy storage error")
)

// MarkStorage 给存储层错误打上 ErrStorage 标记，原始错误链保持不变，
// 调用方既能 errors.Is(err, ErrStorage)，也能继续匹配 gorm/driver 的原始错误。
func MarkStorage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return errors.Mark(err, ErrStorage)
}
