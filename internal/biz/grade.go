package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"
	"lti-tool-provider/internal/data"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

type GradeUseCase struct {
	repo    data.LtiUserRepo
	sender  model.OutcomeSender
	strict  bool
	logger  *zap.Logger
	counter metric.Int64Counter
}

func NewGradeUseCase(repo data.LtiUserRepo, sender model.OutcomeSender, cfg *conf.Bootstrap, logger *zap.Logger) (model.GradeUseCase, error) {
	counter, err := otel.GetMeterProvider().Meter(meterName).Int64Counter(
		"lti.grade.sent",
		metric.WithDescription("LTI 成绩回传次数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grade counter: %w", err)
	}

	return &GradeUseCase{
		repo:    repo,
		sender:  sender,
		strict:  cfg.Lti.StrictGradeSync,
		logger:  logger,
		counter: counter,
	}, nil
}

// BuildGradeRequest 校验成绩范围和记录中的回传参数. NaN 同样视为越界.
func (uc *GradeUseCase) BuildGradeRequest(record *model.LtiUserRecord, grade float64) (*model.GradeRequest, error) {
	if !(0 <= grade && grade <= 1) {
		return nil, fmt.Errorf("%w: Grade should be in range [0..1], got %v", model.ErrInvalidGrade, grade)
	}

	var missing []string
	for _, name := range []string{model.ParamResultSourcedID, model.ParamOutcomeServiceURL} {
		if !record.Parameters.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: Following required LTI parameters are not set: %s",
			model.ErrMissingOutcomeParameters, strings.Join(missing, ", "))
	}

	return &model.GradeRequest{
		OutcomeServiceURL: record.Parameters.Get(model.ParamOutcomeServiceURL),
		ResultSourcedID:   record.Parameters.Get(model.ParamResultSourcedID),
		Grade:             grade,
	}, nil
}

func (uc *GradeUseCase) SendGrade(ctx context.Context, record *model.LtiUserRecord, grade float64) (*model.OutcomeResult, error) {
	req, err := uc.BuildGradeRequest(record, grade)
	if err != nil {
		return nil, err
	}

	result, err := uc.sender.ReplaceResult(ctx, req)
	if err != nil {
		uc.record(ctx, false)
		uc.logger.Error("LTI grade request failed",
			zap.Int64("principal_id", record.PrincipalID),
			zap.String("outcome_service_url", req.OutcomeServiceURL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("send LTI grade: %w", err)
	}

	uc.record(ctx, result.Success)
	if !result.Success {
		uc.logger.Error(fmt.Sprintf("LTI grade request was unsuccessful. Description is %s", result.Description),
			zap.Int64("principal_id", record.PrincipalID),
			zap.String("code_major", result.CodeMajor),
		)
		return result, fmt.Errorf("%w: %s", model.ErrOutcomeFailed, result.Description)
	}

	uc.logger.Info(fmt.Sprintf("LTI grade request was successful. Description is %s", result.Description),
		zap.Int64("principal_id", record.PrincipalID),
		zap.Float64("grade", grade),
	)
	return result, nil
}

// HandleGradeUpdated 宽松模式下找不到记录时不发送, 返回 nil
func (uc *GradeUseCase) HandleGradeUpdated(ctx context.Context, event model.GradeUpdated) (*model.OutcomeResult, error) {
	if event.Principal == nil {
		return nil, model.ErrPrincipalRequired
	}

	key := ""
	if event.VarianceKey != nil {
		key = *event.VarianceKey
	}

	record, err := uc.repo.GetLtiUser(ctx, event.Principal.ID, key)
	if errors.Is(err, model.ErrRecordNotFound) {
		uc.logger.Info("No LTI parameters for principal",
			zap.Int64("principal_id", event.Principal.ID),
			zap.String("variance_key", key),
		)
		if uc.strict {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load LTI parameters: %w", err)
	}

	return uc.SendGrade(ctx, record, event.Grade)
}

func (uc *GradeUseCase) record(ctx context.Context, success bool) {
	uc.counter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
