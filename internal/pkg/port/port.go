package port

import (
	"fmt"
	"net"
)

func tryBind(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return listener.Close()
}

// 找到一个可用的端口，最多尝试 attempts 次
func FindAvailablePort(startPort, attempts int) (int, error) {
	if attempts <= 0 {
		attempts = 100
	}
	for port := startPort; port < startPort+attempts && port <= 65535; port++ {
		if err := tryBind(port); err == nil {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in [%d, %d)", startPort, startPort+attempts)
}
