package core

import "context"

// Store 是存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//
// 使用场景：
//   - 响应缓存：以用户维度缓存融合结果
//   - 会话存储：用户近期在线行为（通过 ListStore 扩展）
//
// 实现：
//   - store.MemoryStore 实现此接口
//   - store.RedisStore 实现此接口
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl 单位为秒（可选，0 表示不过期）
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// Close 关闭连接/释放资源
	Close() error
}

// ListStore 是 Store 的扩展接口，支持有序列表操作（Redis List 语义）。
// 用于用户会话历史这类"尾部追加、保留最近 N 条"的场景。
// start/stop 支持负下标（-1 表示最后一个元素）。
type ListStore interface {
	Store

	// RPush 向列表尾部追加成员
	RPush(ctx context.Context, key string, values ...string) error

	// LTrim 截断列表，只保留 [start, stop] 范围内的成员
	LTrim(ctx context.Context, key string, start, stop int64) error

	// LRange 读取 [start, stop] 范围内的成员
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Expire 设置 key 的过期时间（秒）
	Expire(ctx context.Context, key string, ttl int) error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在。
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}
