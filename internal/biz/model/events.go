package model

// LaunchReceived 已认证的启动处理完成并落库之后发出
type LaunchReceived struct {
	Principal *Principal
	Record    *LtiUserRecord
}

// GradeUpdated 触发成绩回传. VarianceKey 为 nil 时按空 key 查找记录.
type GradeUpdated struct {
	Principal   *Principal
	Grade       float64
	VarianceKey *string
}
