// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	lockRoot = "/pricepoint_locks" // 所有分布式锁的根节点
	seqLen   = 10                  // zk 顺序节点后缀固定为 10 位数字
)

// Connect 建立 ZooKeeper 会话并等待连接就绪。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	deadline := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				log.Info().Strs("servers", servers).Msg("✅ Connected to ZooKeeper")
				return conn, nil
			}
		case <-deadline:
			conn.Close()
			return nil, errors.Errorf("timeout connecting to zookeeper %v", servers)
		}
	}
}

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     *zk.Conn
	path     string // 锁的路径，例如 /pricepoint_locks/campaign-123
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例, 必要时创建父节点
func NewDistributedLock(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	// resourceID 只能是单级节点名
	if resourceID == "" || resourceID == "." || resourceID == ".." || strings.ContainsAny(resourceID, "/\x00") {
		return nil, errors.Errorf("invalid lock resource id %q", resourceID)
	}
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensureNode(conn *zk.Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "check node %s", path)
	}
	if exists {
		return nil
	}
	if _, err := conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "create node %s", path)
	}
	return nil
}

// Lock 获取锁，获取不到则阻塞等待, 直到 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "failed to create sequential node")
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")

	for {
		// 2. 获取锁路径下的所有子节点
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.release()
			return errors.Wrap(err, "failed to get children nodes")
		}

		// 3. 找到排在自己前面的节点, 没有则获得锁
		prev, ok := predecessor(children, myNodeName)
		if !ok {
			l.release()
			return errors.New("own lock node disappeared, session may have expired")
		}
		if prev == "" {
			return nil
		}

		// 4. 监听前一个节点
		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			l.release()
			return errors.Wrap(err, "failed to watch previous node")
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			// 前一个节点有变化, 重新竞争
		case <-ctx.Done():
			l.release()
			return errors.Wrap(ctx.Err(), "waiting for lock")
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "failed to delete lock node")
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) release() {
	if err := l.Unlock(); err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("failed to release lock node")
	}
}

// predecessor 按顺序号排序子节点, 返回紧排在 self 前面的节点。
// self 为最小节点时返回 ""; self 不在列表中时 ok 为 false。
func predecessor(children []string, self string) (string, bool) {
	sorted := append([]string(nil), children...)
	sort.Slice(sorted, func(i, j int) bool {
		return sequenceOf(sorted[i]) < sequenceOf(sorted[j])
	})
	for i, child := range sorted {
		if child != self {
			continue
		}
		if i == 0 {
			return "", true
		}
		return sorted[i-1], true
	}
	return "", false
}

// protected 节点名带有 "_c_<guid>-" 前缀, 只能按结尾的顺序号比较
func sequenceOf(node string) string {
	if len(node) < seqLen {
		return node
	}
	return node[len(node)-seqLen:]
}
