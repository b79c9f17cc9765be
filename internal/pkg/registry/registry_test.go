package registry

import (
	"errors"
	"testing"

	confv1 "lti-tool-provider/internal/conf/v1"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type MockAgent struct {
	mock.Mock
}

func (m *MockAgent) ServiceRegister(service *api.AgentServiceRegistration) error {
	args := m.Called(service)
	return args.Error(0)
}

func (m *MockAgent) ServiceDeregister(serviceID string) error {
	args := m.Called(serviceID)
	return args.Error(0)
}

type testLifecycle struct {
	hooks []fx.Hook
}

func (tl *testLifecycle) Append(hook fx.Hook) {
	tl.hooks = append(tl.hooks, hook)
}

func TestNewConsulRegistry_NotConfigured(t *testing.T) {
	lc := &testLifecycle{}
	r, err := NewConsulRegistry(lc, &confv1.Bootstrap{}, "lti", zap.NewNop())

	assert.NoError(t, err)
	assert.Empty(t, lc.hooks)
	assert.NoError(t, r.Register())
	assert.NoError(t, r.Deregister())
}

func TestNewConsulRegistry_Configured(t *testing.T) {
	lc := &testLifecycle{}
	r, err := NewConsulRegistry(lc, &confv1.Bootstrap{
		Registry: &confv1.Registry{Consul: &confv1.Registry_Consul{
			Address:        "127.0.0.1:8500",
			ServiceAddress: "10.0.0.5",
			ServicePort:    8080,
		}},
	}, "lti", zap.NewNop())

	assert.NoError(t, err)
	assert.Len(t, lc.hooks, 1)
	assert.Equal(t, "lti-10.0.0.5-8080", r.registration.ID)
	assert.Nil(t, r.registration.Check)
}

func TestBuildRegistration_HealthCheck(t *testing.T) {
	reg := buildRegistration(&confv1.Registry_Consul{
		ServiceId:      "lti-1",
		ServiceAddress: "10.0.0.5",
		ServicePort:    8080,
		HealthCheckUrl: "http://10.0.0.5:8080/check.v1.CheckService/Ready",
		Tags:           []string{"lti"},
	}, "lti")

	assert.Equal(t, "lti-1", reg.ID)
	assert.Equal(t, 8080, reg.Port)
	assert.Equal(t, []string{"lti"}, reg.Tags)
	if assert.NotNil(t, reg.Check) {
		assert.Equal(t, "10s", reg.Check.Interval)
	}
}

func TestRegisterAndDeregister(t *testing.T) {
	agent := new(MockAgent)
	r := &ConsulRegistry{
		agent:        agent,
		registration: &api.AgentServiceRegistration{ID: "lti-1", Name: "lti"},
		logger:       zap.NewNop(),
	}

	agent.On("ServiceRegister", r.registration).Return(nil).Once()
	agent.On("ServiceDeregister", "lti-1").Return(errors.New("agent down")).Once()

	assert.NoError(t, r.Register())
	assert.Error(t, r.Deregister())
	agent.AssertExpectations(t)
}
