package core

// DomainError 是领域层的统一错误类型。
// 所有领域层错误都带错误代码（Code）与模块名（Module），
// 便于上层做统一的错误分类与降级处理。
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "session"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError 创建新的领域错误。
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// GetDomainError 获取 DomainError，如果不是则返回 nil。
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	if domainErr, ok := err.(*DomainError); ok {
		return domainErr
	}
	return nil
}

// 错误代码常量
const (
	ErrorCodeNotFound     = "NOT_FOUND"     // 资源不存在
	ErrorCodeNotSupported = "NOT_SUPPORTED" // 操作不支持
	ErrorCodeUnavailable  = "UNAVAILABLE"   // 服务不可用
	ErrorCodeInvalidInput = "INVALID_INPUT" // 输入无效
)

// 模块名称常量
const (
	ModuleStore   = "store"   // 存储模块
	ModuleDataset = "dataset" // 离线数据集模块
	ModuleSession = "session" // 会话模块
	ModuleService = "service" // 服务模块
)

// IsNotFound 检查错误是否为 NOT_FOUND。
func IsNotFound(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsUnavailable 检查错误是否为 UNAVAILABLE。
func IsUnavailable(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeUnavailable
	}
	return false
}
