package biz

import (
	"context"
	"errors"
	"testing"

	"lti-tool-provider/internal/biz/model"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSignals_LaunchReceived(t *testing.T) {
	signals := NewSignals(zap.NewNop())
	var order []string
	signals.SubscribeLaunchReceived(func(context.Context, model.LaunchReceived) { order = append(order, "first") })
	signals.SubscribeLaunchReceived(func(context.Context, model.LaunchReceived) { order = append(order, "second") })

	signals.EmitLaunchReceived(context.Background(), model.LaunchReceived{
		Principal: &model.Principal{ID: 1},
		Record:    &model.LtiUserRecord{PrincipalID: 1},
	})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSignals_GradeUpdatedJoinsErrors(t *testing.T) {
	signals := NewSignals(zap.NewNop())
	errA := errors.New("a")
	errB := errors.New("b")
	calls := 0
	signals.SubscribeGradeUpdated(func(context.Context, model.GradeUpdated) error { calls++; return errA })
	signals.SubscribeGradeUpdated(func(context.Context, model.GradeUpdated) error { calls++; return nil })
	signals.SubscribeGradeUpdated(func(context.Context, model.GradeUpdated) error { calls++; return errB })

	err := signals.EmitGradeUpdated(context.Background(), model.GradeUpdated{})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestSignals_NoSubscribers(t *testing.T) {
	assert.NoError(t, NewSignals(zap.NewNop()).EmitGradeUpdated(context.Background(), model.GradeUpdated{}))
}
