package service

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 词表用于生成可读性更好的邮箱前缀
var (
	adjectives = []string{
		"quick", "fast", "temp", "rapid", "swift", "brief", "short",
		"instant", "flash", "speedy", "hasty", "urgent", "express",
	}
	nouns = []string{
		"mail", "email", "message", "letter", "post", "note",
		"inbox", "box", "account", "address", "user", "temp",
	}
)

// AddressGenerator 生成一次性邮箱的本地部分。
// 纯格式化逻辑，不持有任何邮箱状态。
type AddressGenerator struct {
	mu     sync.Mutex
	random *rand.Rand
}

// NewAddressGenerator 创建地址生成器。
func NewAddressGenerator() *AddressGenerator {
	return &AddressGenerator{
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RandomLocalPart 生成随机前缀。
func (g *AddressGenerator) RandomLocalPart() string {
	// 截断 uuid 保证唯一性和随机性
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return base[:12]
}

// WordLocalPart 生成"形容词+名词+数字"形式的前缀。
func (g *AddressGenerator) WordLocalPart() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	adjective := adjectives[g.random.Intn(len(adjectives))]
	noun := nouns[g.random.Intn(len(nouns))]
	number := g.random.Intn(9900) + 100
	return fmt.Sprintf("%s%s%d", adjective, noun, number)
}

// TimestampedLocalPart 生成包含时间戳的前缀。
func (g *AddressGenerator) TimestampedLocalPart() string {
	g.mu.Lock()
	stamp := time.Now().Format("150405")
	g.mu.Unlock()
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("temp%s%s", stamp, base[:5])
}

// LocalPart 按指定方式生成前缀："word"、"timestamped" 或默认随机。
func (g *AddressGenerator) LocalPart(method string) string {
	switch method {
	case "word":
		return g.WordLocalPart()
	case "timestamped":
		return g.TimestampedLocalPart()
	default:
		return g.RandomLocalPart()
	}
}
