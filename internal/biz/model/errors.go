package model

import "errors"

var (
	ErrWrongPrincipal           = errors.New("stored LTI parameters belong to a different LTI user")
	ErrVarianceKeyTooLong       = errors.New("variance key exceeds 190 bytes")
	ErrInvalidGrade             = errors.New("invalid grade")
	ErrMissingOutcomeParameters = errors.New("missing LTI outcome parameters")
	ErrRecordNotFound           = errors.New("no LTI parameters stored")
	ErrOutcomeFailed            = errors.New("LTI outcome request was unsuccessful")
	ErrPrincipalRequired        = errors.New("user is not specified")
)

// InvalidLaunchRequestError 签名或 oauth 参数校验失败, 属于客户端错误, 不重试
type InvalidLaunchRequestError struct {
	Err error
}

func (e *InvalidLaunchRequestError) Error() string {
	return "Invalid LTI Request: " + e.Err.Error()
}

func (e *InvalidLaunchRequestError) Unwrap() error {
	return e.Err
}
