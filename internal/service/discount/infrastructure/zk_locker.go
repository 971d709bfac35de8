package infrastructure

import (
	"context"

	"github.com/go-zookeeper/zk"

	"pricepoint/internal/service/discount/domain/port"
	"pricepoint/internal/zookeeper"
)

// ZkLocker 基于 ZooKeeper 临时顺序节点的分布式锁
type ZkLocker struct {
	conn *zk.Conn
}

var _ port.Locker = (*ZkLocker)(nil)

func NewZkLocker(conn *zk.Conn) *ZkLocker {
	return &ZkLocker{conn: conn}
}

func (l *ZkLocker) Lock(ctx context.Context, resource string) (func() error, error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, resource)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}
