package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailboxConfig 定义邮箱服务的核心业务配置
type MailboxConfig struct {
	AllowedDomains []string      // 允许创建邮箱的域名列表
	DefaultTTL     time.Duration // 邮箱默认生存时间，过期后被清理任务删除
	MaxTTL         time.Duration // 单次请求允许的最大生存时间
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	Host            string        // 监听地址，默认 "0.0.0.0"
	StartPort       int           // 起始端口，默认 1025
	PortProbeWindow int           // 起始端口被占用时向上探测的端口数量，默认 100
	Domain          string        // 服务器域名，用于 HELO/EHLO 响应
	MaxMessageBytes int64         // 单封邮件最大字节数，默认 10MB
	MaxRecipients   int           // 单次会话最大收件人数量
	ReadTimeout     time.Duration // 会话读超时，超时后连接被关闭
	WriteTimeout    time.Duration // 会话写超时
	MaxConnections  int           // 最大并发会话数
	ConnRate        int           // 每秒最大新建会话数
}

// SweepConfig 定义过期邮箱清理任务的配置
type SweepConfig struct {
	Interval time.Duration // 清理周期，默认 1 小时
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Mailbox  MailboxConfig
	SMTP     SMTPConfig
	Sweep    SweepConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: NMAIL_
// 例如: NMAIL_SMTP_START_PORT, NMAIL_SWEEP_INTERVAL
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，.env 是可选的）
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("nmail")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("mailbox.allowed_domains", "nmail.local")
	v.SetDefault("mailbox.default_ttl", "24h")
	v.SetDefault("mailbox.max_ttl", "168h")
	v.SetDefault("smtp.host", "0.0.0.0")
	v.SetDefault("smtp.start_port", 1025)
	v.SetDefault("smtp.port_probe_window", 100)
	v.SetDefault("smtp.domain", "nmail.local")
	v.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	v.SetDefault("smtp.max_recipients", 50)
	v.SetDefault("smtp.read_timeout", "10s")
	v.SetDefault("smtp.write_timeout", "10s")
	v.SetDefault("smtp.max_connections", 128)
	v.SetDefault("smtp.conn_rate", 50)
	v.SetDefault("sweep.interval", "1h")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("database.type", "") // 默认为空，使用内存存储
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	defaultTTL, err := time.ParseDuration(v.GetString("mailbox.default_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.default_ttl: %w", err)
	}
	if defaultTTL <= 0 {
		return nil, fmt.Errorf("mailbox.default_ttl must be positive")
	}

	maxTTL, err := time.ParseDuration(v.GetString("mailbox.max_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.max_ttl: %w", err)
	}

	domainList := parseDomains(v.GetString("mailbox.allowed_domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("mailbox.allowed_domains must not be empty")
	}

	probeWindow := v.GetInt("smtp.port_probe_window")
	if probeWindow <= 0 {
		return nil, fmt.Errorf("smtp.port_probe_window must be positive")
	}

	sweepInterval, err := time.ParseDuration(v.GetString("sweep.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid sweep.interval: %w", err)
	}
	if sweepInterval <= 0 {
		return nil, fmt.Errorf("sweep.interval must be positive")
	}

	readTimeout, err := time.ParseDuration(v.GetString("smtp.read_timeout"))
	if err != nil {
		readTimeout = 10 * time.Second
	}
	writeTimeout, err := time.ParseDuration(v.GetString("smtp.write_timeout"))
	if err != nil {
		writeTimeout = 10 * time.Second
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			AllowedDomains: domainList,
			DefaultTTL:     defaultTTL,
			MaxTTL:         maxTTL,
		},
		SMTP: SMTPConfig{
			Host:            v.GetString("smtp.host"),
			StartPort:       v.GetInt("smtp.start_port"),
			PortProbeWindow: probeWindow,
			Domain:          v.GetString("smtp.domain"),
			MaxMessageBytes: v.GetInt64("smtp.max_message_bytes"),
			MaxRecipients:   v.GetInt("smtp.max_recipients"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			MaxConnections:  v.GetInt("smtp.max_connections"),
			ConnRate:        v.GetInt("smtp.conn_rate"),
		},
		Sweep: SweepConfig{
			Interval: sweepInterval,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            v.GetString("database.type"),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，去除空白项
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 先尝试当前目录，再尝试父目录（从 backend/ 子目录运行的情况）。
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
