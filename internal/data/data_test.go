package data

import (
	"context"
	"errors"
	"testing"

	"lti-tool-provider/internal/data/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

func TestCheckRepo_Ping(t *testing.T) {
	repo := &checkRepo{
		probes: []probe{
			{name: ComponentPostgres, ping: func(context.Context) error { return nil }},
			{name: ComponentRedis, ping: func(context.Context) error { return errors.New("connection refused") }},
		},
		l: zap.NewNop(),
	}

	results := repo.Ping(context.Background())

	assert.Len(t, results, 2)
	assert.NoError(t, results[ComponentPostgres])
	assert.EqualError(t, results[ComponentRedis], "connection refused")
}

func TestCheckRepo_PingHonoursContext(t *testing.T) {
	repo := &checkRepo{
		probes: []probe{
			{name: ComponentPostgres, ping: func(ctx context.Context) error { return ctx.Err() }},
		},
		l: zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := repo.Ping(ctx)
	assert.ErrorIs(t, results[ComponentPostgres], context.Canceled)
}

// UserRepoTestSuite 是 UserRepo 的测试套件
type UserRepoTestSuite struct {
	suite.Suite
	queries  *models.Queries
	redis    *redis.Client
	userRepo UserRepo
	logger   *zap.Logger
}

func (suite *UserRepoTestSuite) SetupTest() {
	// 创建真实的数据库和 Redis 连接用于测试
	// 注意：在实际项目中，应该使用测试数据库和 Redis
	suite.logger, _ = zap.NewDevelopment()

	// 使用默认配置创建连接
	// 这里简化处理，实际项目中应该使用测试配置
	// 注意：需要先创建 Data 实例，然后创建 UserRepo
	// 由于测试需要真实的数据库连接，这里简化处理
	suite.userRepo = nil // 在实际项目中应该创建真实的 UserRepo 实例
}

func (suite *UserRepoTestSuite) TestGetUserByName_Success() {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	suite.T().Skip("需要真实的数据库和 Redis 连接进行测试")
}

func (suite *UserRepoTestSuite) TestGetUserByName_NotFound() {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	suite.T().Skip("需要真实的数据库和 Redis 连接进行测试")
}

func (suite *UserRepoTestSuite) TestCreateUser_Success() {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	suite.T().Skip("需要真实的数据库和 Redis 连接进行测试")
}

func (suite *UserRepoTestSuite) TestStoreAuthChallenge_Success() {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	suite.T().Skip("需要真实的数据库和 Redis 连接进行测试")
}

func (suite *UserRepoTestSuite) TestGetAuthChallenge_Success() {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	suite.T().Skip("需要真实的数据库和 Redis 连接进行测试")
}

func (suite *UserRepoTestSuite) TestGetAuthChallenge_NotFound() {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	suite.T().Skip("需要真实的数据库和 Redis 连接进行测试")
}

// LtiUserRepoTestSuite 是 LtiUserRepo 的测试套件, 内存实现的行为见 memory_test.go
type LtiUserRepoTestSuite struct {
	suite.Suite
	ltiUserRepo LtiUserRepo
	logger      *zap.Logger
}

func (suite *LtiUserRepoTestSuite) SetupTest() {
	suite.logger, _ = zap.NewDevelopment()
	suite.ltiUserRepo = nil // 需要真实的数据库连接
}

func (suite *LtiUserRepoTestSuite) TestUpsertLtiUser_Overwrite() {
	suite.T().Skip("需要真实的数据库连接进行测试")
}

func (suite *LtiUserRepoTestSuite) TestUpsertLtiUser_WrongPrincipal() {
	suite.T().Skip("需要真实的数据库连接进行测试")
}

func (suite *LtiUserRepoTestSuite) TestGetLtiUser_NotFound() {
	suite.T().Skip("需要真实的数据库连接进行测试")
}

// SessionStoreTestSuite 是 Redis 会话的测试套件
type SessionStoreTestSuite struct {
	suite.Suite
	redis *redis.Client
}

func (suite *SessionStoreTestSuite) TestSetGetDelete() {
	suite.T().Skip("需要真实的 Redis 连接进行测试")
}

func (suite *SessionStoreTestSuite) TestExpiry() {
	suite.T().Skip("需要真实的 Redis 连接进行测试")
}

// 运行测试套件
func TestUserRepoTestSuite(t *testing.T) {
	suite.Run(t, new(UserRepoTestSuite))
}

func TestLtiUserRepoTestSuite(t *testing.T) {
	suite.Run(t, new(LtiUserRepoTestSuite))
}

func TestSessionStoreTestSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreTestSuite))
}

// 单元测试函数
func TestNewData(t *testing.T) {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	t.Skip("需要真实的数据库和 Redis 连接进行测试")
}

func TestNewUserRepo(t *testing.T) {
	// 由于使用真实连接，这里跳过测试或标记为需要真实数据库
	t.Skip("需要真实的数据库和 Redis 连接进行测试")
}
