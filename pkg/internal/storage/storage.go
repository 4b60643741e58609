// Package storage 聚合服务运行期依赖的外部资源：KV 存储与消息队列.
//
// Example:
//
//	mgr, err := storage.Init(ctx, cfg)
//	if err != nil {
//		// 处理错误
//	}
//	defer mgr.Close()
//
//	store := mgr.GetKVClient()
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/folderrelay/pkg/configs"
	kvc "github.com/yeisme/folderrelay/pkg/internal/storage/kv"
	mqc "github.com/yeisme/folderrelay/pkg/internal/storage/mq"
	nlog "github.com/yeisme/folderrelay/pkg/log"
	"github.com/yeisme/folderrelay/pkg/metrics"
)

// Manager 聚合所有存储资源；MQ 仅在开启事件时创建.
type Manager struct {
	KV *kvc.Client
	MQ *mqc.Client
}

// Init 按配置初始化存储资源，任一资源失败时关闭已创建的资源.
func Init(ctx context.Context, cfg *configs.AppConfig) (*Manager, error) {
	m := &Manager{}

	kv, err := kvc.NewKVClient(ctx, cfg.KV)
	if err != nil {
		return nil, fmt.Errorf("init kv: %w", err)
	}

	m.KV = kv

	if cfg.Events.Enabled {
		var opts []mqc.Option
		if cfg.Metrics.Enabled {
			opts = append(opts, mqc.WithMetrics(metrics.GetRegistry()))
		}

		mq, err := mqc.New(ctx, cfg.MQ, opts...)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init mq: %w", err)
		}

		m.MQ = mq
	}

	nlog.Logger().Info().
		Str("kv", cfg.KV.Type).
		Bool("events", m.MQ != nil).
		Msg("storage manager initialized")

	return m, nil
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// GetMQClient 获取 MQ 客户端，未开启事件时为 nil.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}

// Ping 检查 KV 后端是否可用.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.KV == nil {
		return nil
	}

	return m.KV.Ping(ctx)
}

// Close 关闭全部资源.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	return errors.Join(errs...)
}
