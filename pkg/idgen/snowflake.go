package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// 雪花 ID：41 位时间戳 + 10 位节点 + 12 位序列，趋势递增，不暴露业务量

var (
	node *snowflake.Node
	mu   sync.Mutex
)

func init() {
	// 2024-01-01 00:00:00 UTC
	snowflake.Epoch = 1704067200000
}

// Init 设置节点号，多实例部署时每个实例不同
func Init(workerID int64) error {
	mu.Lock()
	defer mu.Unlock()
	n, err := snowflake.NewNode(workerID)
	if err != nil {
		return fmt.Errorf("初始化 ID 生成器失败: %w", err)
	}
	node = n
	return nil
}

func NextID() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}

func withPrefix(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%d", prefix, time.Now().Format("20060102"), id)
}

// GenerateDepositNo 充值单号：DEP + 年月日 + 雪花 ID
func GenerateDepositNo() string {
	return withPrefix("DEP")
}

func GenerateWithdrawalNo() string {
	return withPrefix("WDR")
}

// GenerateEventKey 消息键
func GenerateEventKey() string {
	return withPrefix("EVT")
}
