package smtp

import (
	"fmt"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// ListenerConfig 定义接收监听器的配置。
type ListenerConfig struct {
	Host            string        // 监听地址
	StartPort       int           // 起始端口
	PortProbeWindow int           // 起始端口被占用时向上探测的端口数量
	Domain          string        // HELO/EHLO 响应域名
	MaxMessageBytes int64         // 单封邮件最大字节数
	MaxRecipients   int           // 单次会话最大收件人数量
	ReadTimeout     time.Duration // 会话读超时
	WriteTimeout    time.Duration // 会话写超时
}

// Listener 绑定网络端口并把 SMTP 会话分发给 Backend。
//
// 起始端口被占用时在有限窗口内向上逐个探测，成功后该端口
// 在进程生命周期内保持不变；窗口耗尽是致命的启动错误。
type Listener struct {
	server *gosmtp.Server
	ln     net.Listener
	port   int
	log    *zap.Logger
}

// NewListener 创建监听器并完成端口绑定。
func NewListener(cfg ListenerConfig, backend *Backend, log *zap.Logger) (*Listener, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PortProbeWindow <= 0 {
		cfg.PortProbeWindow = 100
	}

	ln, port, err := probeListen(cfg.Host, cfg.StartPort, cfg.PortProbeWindow, log)
	if err != nil {
		return nil, err
	}

	server := gosmtp.NewServer(backend)
	server.Domain = cfg.Domain
	server.ReadTimeout = cfg.ReadTimeout
	server.WriteTimeout = cfg.WriteTimeout
	server.MaxMessageBytes = cfg.MaxMessageBytes
	server.MaxRecipients = cfg.MaxRecipients

	log.Info("smtp listener bound",
		zap.String("host", cfg.Host),
		zap.Int("port", port),
	)

	return &Listener{
		server: server,
		ln:     ln,
		port:   port,
		log:    log,
	}, nil
}

// probeListen 从 startPort 开始在 window 个端口内寻找可绑定的端口。
func probeListen(host string, startPort, window int, log *zap.Logger) (net.Listener, int, error) {
	for port := startPort; port < startPort+window; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err == nil {
			return ln, ln.Addr().(*net.TCPAddr).Port, nil
		}
		log.Debug("port unavailable, probing next",
			zap.Int("port", port),
			zap.Error(err),
		)
	}
	return nil, 0, fmt.Errorf("no available port in range %d-%d", startPort, startPort+window-1)
}

// Port 返回实际绑定的端口，供下游配置协议客户端。
func (l *Listener) Port() int {
	return l.port
}

// Serve 开始接收会话。每个会话独立处理，单个会话的失败
// 不影响其他会话，也不会终止监听器。
func (l *Listener) Serve() error {
	return l.server.Serve(l.ln)
}

// Close 关闭监听器及全部活动会话。
func (l *Listener) Close() error {
	return l.server.Close()
}
