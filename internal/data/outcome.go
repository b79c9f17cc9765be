package data

import (
	"context"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"
	"lti-tool-provider/internal/pkg/outcome"
)

type outcomeSender struct {
	client *outcome.Client
}

// NewOutcomeSender 使用工具的 consumer key/secret 对成绩请求签名
func NewOutcomeSender(cfg *conf.Bootstrap) (model.OutcomeSender, error) {
	client, err := outcome.NewClient(cfg.Lti.ToolConsumerKey, cfg.Lti.ToolConsumerSecret)
	if err != nil {
		return nil, err
	}
	return NewOutcomeSenderWithClient(client), nil
}

func NewOutcomeSenderWithClient(client *outcome.Client) model.OutcomeSender {
	return &outcomeSender{client: client}
}

func (s *outcomeSender) ReplaceResult(ctx context.Context, req *model.GradeRequest) (*model.OutcomeResult, error) {
	resp, err := s.client.ReplaceResult(ctx, req.OutcomeServiceURL, req.ResultSourcedID, req.Grade)
	if err != nil {
		return nil, err
	}
	return &model.OutcomeResult{
		Success:     resp.IsSuccess(),
		CodeMajor:   resp.CodeMajor,
		Description: resp.Description,
	}, nil
}
