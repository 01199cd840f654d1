package storage

// Entity 可存入注册表的实体
type Entity[T any] interface {
	EntityID() string
	Clone() T
}

// Store 注册表存储接口
// List 必须按首次插入的顺序返回，覆盖写不改变顺序
type Store[T Entity[T]] interface {
	// Save 新建或覆盖
	Save(item T) error

	// Get 获取，不存在时返回包装了 models.ErrNotFound 的错误
	Get(id string) (T, error)

	// List 按插入顺序列出
	List() ([]T, error)

	// Delete 删除，不存在时返回 models.ErrNotFound
	Delete(id string) error

	// Clear 清空
	Clear() error

	// Close 关闭存储
	Close() error
}
