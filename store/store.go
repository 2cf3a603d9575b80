package store

// Store is the durable key/value substrate every stateful component sits on.
// CompareAndSwap with expected == "" means "create only if absent".
type Store interface {
	Get(key string) (value string, found bool, err error)
	Put(key, value string) error
	Delete(key string) error
	ListByPrefix(prefix string) (map[string]string, error)
	CompareAndSwap(key, expected, next string) (bool, error)
}
