package registry

import (
	"context"
	"fmt"

	confv1 "lti-tool-provider/internal/conf/v1"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module 提供 Consul 注册
var Module = fx.Module("registry",
	fx.Provide(NewConsulRegistry),
)

// agent 是 consul Agent 中用到的子集, 便于测试替换
type agent interface {
	ServiceRegister(service *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// ConsulRegistry 把服务注册到 Consul, 未配置 registry.consul 时为空操作
type ConsulRegistry struct {
	agent        agent
	registration *api.AgentServiceRegistration
	logger       *zap.Logger
}

// NewConsulRegistry 创建注册器并挂到 fx 生命周期上
func NewConsulRegistry(lc fx.Lifecycle, cfg *confv1.Bootstrap, serviceName string, logger *zap.Logger) (*ConsulRegistry, error) {
	r := &ConsulRegistry{logger: logger}
	if cfg.Registry == nil || cfg.Registry.Consul == nil || cfg.Registry.Consul.Address == "" {
		logger.Info("Consul registry not configured, skipping service registration")
		return r, nil
	}

	consulCfg := api.DefaultConfig()
	consulCfg.Address = cfg.Registry.Consul.Address
	client, err := api.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	r.agent = client.Agent()
	r.registration = buildRegistration(cfg.Registry.Consul, serviceName)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Register()
		},
		OnStop: func(ctx context.Context) error {
			return r.Deregister()
		},
	})
	return r, nil
}

func buildRegistration(c *confv1.Registry_Consul, serviceName string) *api.AgentServiceRegistration {
	id := c.ServiceId
	if id == "" {
		id = fmt.Sprintf("%s-%s-%d", serviceName, c.ServiceAddress, c.ServicePort)
	}

	reg := &api.AgentServiceRegistration{
		ID:      id,
		Name:    serviceName,
		Address: c.ServiceAddress,
		Port:    int(c.ServicePort),
		Tags:    c.Tags,
	}
	if c.HealthCheckUrl != "" {
		reg.Check = &api.AgentServiceCheck{
			HTTP:                           c.HealthCheckUrl,
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		}
	}
	return reg
}

// Register 注册服务
func (r *ConsulRegistry) Register() error {
	if r.agent == nil {
		return nil
	}
	if err := r.agent.ServiceRegister(r.registration); err != nil {
		return fmt.Errorf("register service %s: %w", r.registration.ID, err)
	}
	r.logger.Info("Service registered to consul",
		zap.String("id", r.registration.ID),
		zap.String("name", r.registration.Name),
	)
	return nil
}

// Deregister 注销服务
func (r *ConsulRegistry) Deregister() error {
	if r.agent == nil {
		return nil
	}
	if err := r.agent.ServiceDeregister(r.registration.ID); err != nil {
		r.logger.Error("Failed to deregister service", zap.String("id", r.registration.ID), zap.Error(err))
		return err
	}
	r.logger.Info("Service deregistered from consul", zap.String("id", r.registration.ID))
	return nil
}
