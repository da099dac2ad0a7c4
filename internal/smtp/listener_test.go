package smtp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProbeListen(t *testing.T) {
	// 先占住一个端口
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	startPort := occupied.Addr().(*net.TCPAddr).Port

	t.Run("起始端口被占用时向上探测", func(t *testing.T) {
		ln, port, err := probeListen("127.0.0.1", startPort, 10, zap.NewNop())
		require.NoError(t, err)
		defer ln.Close()

		assert.Greater(t, port, startPort)
		assert.Less(t, port, startPort+10)
	})

	t.Run("探测窗口耗尽时失败", func(t *testing.T) {
		_, _, err := probeListen("127.0.0.1", startPort, 1, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestNewListener(t *testing.T) {
	env := newTestEnv(t)

	listener, err := NewListener(ListenerConfig{
		Host:            "127.0.0.1",
		StartPort:       0, // 由系统分配空闲端口
		PortProbeWindow: 1,
		Domain:          "nmail.local",
	}, env.backend, nil)
	require.NoError(t, err)
	defer listener.Close()

	assert.Greater(t, listener.Port(), 0)
}
