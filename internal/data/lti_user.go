package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lti-tool-provider/internal/biz/model"
	"lti-tool-provider/internal/data/models"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// LtiUserRepo 按 (principal, variance key) 存取 LTI 启动参数
type LtiUserRepo interface {
	// GetLtiUser 没有记录时返回 model.ErrRecordNotFound
	GetLtiUser(ctx context.Context, principalID int64, varianceKey string) (*model.LtiUserRecord, error)
	// UpsertLtiUser 整体替换参数, created 表示新建.
	// 已有记录属于另一个 LTI user_id 时返回 model.ErrWrongPrincipal.
	UpsertLtiUser(ctx context.Context, principalID int64, varianceKey string, params model.LaunchParameters) (record *model.LtiUserRecord, created bool, err error)
}

type ltiUserRepo struct {
	queries *models.Queries
	l       *zap.Logger
}

func NewLtiUserRepo(data *Data, logger *zap.Logger) LtiUserRepo {
	return &ltiUserRepo{
		queries: models.New(data.db),
		l:       logger,
	}
}

func (r *ltiUserRepo) GetLtiUser(ctx context.Context, principalID int64, varianceKey string) (*model.LtiUserRecord, error) {
	row, err := r.queries.GetLtiUser(ctx, models.GetLtiUserParams{
		UserID:    principalID,
		CustomKey: varianceKey,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return toLtiUserRecord(row)
}

func (r *ltiUserRepo) UpsertLtiUser(ctx context.Context, principalID int64, varianceKey string, params model.LaunchParameters) (*model.LtiUserRecord, bool, error) {
	if len(varianceKey) > model.MaxVarianceKeyLength {
		return nil, false, model.ErrVarianceKeyTooLong
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, false, fmt.Errorf("encode lti parameters: %w", err)
	}

	row, err := r.queries.UpsertLtiUser(ctx, models.UpsertLtiUserParams{
		UserID:        principalID,
		CustomKey:     varianceKey,
		LtiParameters: payload,
	})
	// ON CONFLICT 的 WHERE 条件不满足时没有返回行
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, model.ErrWrongPrincipal
	}
	if err != nil {
		return nil, false, err
	}

	record, err := toLtiUserRecord(models.LtiUser{
		ID:            row.ID,
		UserID:        row.UserID,
		CustomKey:     row.CustomKey,
		LtiParameters: row.LtiParameters,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	})
	if err != nil {
		return nil, false, err
	}
	return record, row.Inserted, nil
}

func toLtiUserRecord(row models.LtiUser) (*model.LtiUserRecord, error) {
	var params model.LaunchParameters
	if err := json.Unmarshal(row.LtiParameters, &params); err != nil {
		return nil, fmt.Errorf("decode lti parameters: %w", err)
	}
	return &model.LtiUserRecord{
		ID:          row.ID,
		PrincipalID: row.UserID,
		VarianceKey: row.CustomKey,
		Parameters:  params,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}, nil
}
