package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
)

// Connect 连接 NATS，断线后无限重连。
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("pivoice"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("[bus] 与 NATS 断开: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("[bus] 已重连 NATS: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接 NATS %s 失败: %w", url, err)
	}
	logger.Infof("[bus] 已连接 NATS: %s", nc.ConnectedUrl())
	return nc, nil
}

// StartEmbedded 在本进程内启动 NATS 服务，只监听本机。
func StartEmbedded(cfg config.BusConfig) (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   cfg.Port,
		NoSigs: true,
		NoLog:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("创建内嵌 NATS 服务失败: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("内嵌 NATS 服务启动超时")
	}
	logger.Infof("[bus] 内嵌 NATS 服务已启动: %s", ns.ClientURL())
	return ns, nil
}
