package data

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// 就绪检查涉及的组件名
const (
	ComponentPostgres = "postgres"
	ComponentRedis    = "redis"
)

type CheckRepo interface {
	// Ping 逐个探测依赖组件, 健康组件对应的值为 nil
	Ping(ctx context.Context) map[string]error
}

type probe struct {
	name string
	ping func(context.Context) error
}

type checkRepo struct {
	probes []probe
	l      *zap.Logger
}

func NewCheckRepo(d *Data, l *zap.Logger) CheckRepo {
	return &checkRepo{
		probes: []probe{
			{name: ComponentPostgres, ping: d.db.Ping},
			{name: ComponentRedis, ping: func(ctx context.Context) error {
				return d.rdb.Ping(ctx).Err()
			}},
		},
		l: l,
	}
}

func (c *checkRepo) Ping(ctx context.Context) map[string]error {
	results := make(map[string]error, len(c.probes))
	for _, p := range c.probes {
		start := time.Now()
		err := p.ping(ctx)
		if err != nil {
			c.l.Warn("Component ping failed",
				zap.String("component", p.name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		results[p.name] = err
	}
	return results
}
