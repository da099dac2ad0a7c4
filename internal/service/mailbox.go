package service

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"nmail/backend/internal/config"
	"nmail/backend/internal/domain"
	"nmail/backend/internal/storage"
)

var (
	ErrDomainNotAllowed = errors.New("domain not allowed")
	ErrPrefixInvalid    = errors.New("prefix invalid")
	ErrTTLInvalid       = errors.New("ttl invalid")
	ErrAddressTaken     = storage.ErrAddressTaken
)

// 本地部分只允许小写字母、数字、点、下划线和连字符，长度 2-64
var localPartPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,63}$`)

// MailboxService 封装邮箱目录：负责开通邮箱，并回答
// "这个地址现在是否可收信"。投递路径只使用只读方法。
type MailboxService struct {
	repo      storage.Store
	cfg       *config.Config
	domainSet map[string]struct{}
	generator *AddressGenerator
	random    *rand.Rand
}

// NewMailboxService 创建邮箱目录服务。
func NewMailboxService(repo storage.Store, cfg *config.Config) *MailboxService {
	domainSet := make(map[string]struct{}, len(cfg.Mailbox.AllowedDomains))
	for _, d := range cfg.Mailbox.AllowedDomains {
		domainSet[d] = struct{}{}
	}

	return &MailboxService{
		repo:      repo,
		cfg:       cfg,
		domainSet: domainSet,
		generator: NewAddressGenerator(),
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateMailboxInput 定义开通邮箱所需的输入。
type CreateMailboxInput struct {
	Prefix string        // 留空时自动生成
	Method string        // 自动生成方式: random / word / timestamped
	Domain string        // 留空时使用默认域名
	TTL    time.Duration // 留空（0）时使用配置的默认生存时间
}

// Create 开通新的一次性邮箱。地址已被占用时返回 ErrAddressTaken。
func (s *MailboxService) Create(input CreateMailboxInput) (*domain.Mailbox, error) {
	selectedDomain := s.pickDomain(input.Domain)
	if selectedDomain == "" {
		return nil, ErrDomainNotAllowed
	}

	ttl := input.TTL
	if ttl == 0 {
		ttl = s.cfg.Mailbox.DefaultTTL
	}
	if ttl < 0 || (s.cfg.Mailbox.MaxTTL > 0 && ttl > s.cfg.Mailbox.MaxTTL) {
		return nil, ErrTTLInvalid
	}

	localPart, err := s.resolveLocalPart(input.Prefix, input.Method)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mailbox := &domain.Mailbox{
		ID:        uuid.NewString(),
		Address:   fmt.Sprintf("%s@%s", localPart, selectedDomain),
		LocalPart: localPart,
		Domain:    selectedDomain,
		Token:     s.generateToken(32),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		IsActive:  true,
	}

	if err := s.repo.SaveMailbox(mailbox); err != nil {
		return nil, err
	}
	return mailbox, nil
}

// IsDeliverable 判断地址当前是否可投递：邮箱存在、激活且未过期。
// 纯读操作，不会延长有效期，可与开通和清理任务并发调用。
func (s *MailboxService) IsDeliverable(address string) bool {
	mailbox, err := s.Lookup(address)
	if err != nil {
		return false
	}
	return mailbox.Deliverable(time.Now())
}

// Lookup 根据地址查找邮箱，找不到时返回 storage.ErrMailboxNotFound。
func (s *MailboxService) Lookup(address string) (*domain.Mailbox, error) {
	address = strings.Trim(strings.TrimSpace(address), "<>")
	if address == "" {
		return nil, storage.ErrMailboxNotFound
	}
	return s.repo.GetMailboxByAddress(address)
}

// Get 根据 ID 获取邮箱。
func (s *MailboxService) Get(id string) (*domain.Mailbox, error) {
	return s.repo.GetMailbox(id)
}

// List 返回全部邮箱快照。
func (s *MailboxService) List() ([]domain.Mailbox, error) {
	return s.repo.ListMailboxes()
}

// Delete 删除指定邮箱并级联删除其全部邮件。
func (s *MailboxService) Delete(id string) error {
	return s.repo.DeleteMailbox(id)
}

// Domains 返回允许创建邮箱的域名列表。
func (s *MailboxService) Domains() []string {
	return s.cfg.Mailbox.AllowedDomains
}

// pickDomain 挑选合法的邮箱域名。
func (s *MailboxService) pickDomain(requested string) string {
	if requested == "" {
		return s.cfg.Mailbox.AllowedDomains[0]
	}
	requested = strings.ToLower(strings.TrimSpace(requested))
	if _, ok := s.domainSet[requested]; ok {
		return requested
	}
	return ""
}

// resolveLocalPart 生成或验证邮箱前缀。
func (s *MailboxService) resolveLocalPart(prefix, method string) (string, error) {
	if prefix == "" {
		return s.generator.LocalPart(method), nil
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if !localPartPattern.MatchString(prefix) {
		return "", ErrPrefixInvalid
	}
	return prefix, nil
}

// generateToken 生成邮箱访问令牌。
func (s *MailboxService) generateToken(length int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[s.random.Intn(len(alphabet))]
	}
	return string(b)
}
