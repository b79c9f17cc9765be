package biz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"
	"lti-tool-provider/internal/data"
	"lti-tool-provider/internal/pkg/oauth1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const (
	testLaunchURL      = "https://tool.example.com/lti/"
	testConsumerKey    = "123"
	testConsumerSecret = "456"
)

// fakeAuth 记录登录和登出
type fakeAuth struct {
	principal *model.Principal
	signOuts  int
}

func (a *fakeAuth) Principal(context.Context) *model.Principal {
	return a.principal
}

func (a *fakeAuth) SignIn(_ context.Context, p *model.Principal) error {
	a.principal = p
	return nil
}

func (a *fakeAuth) SignOut(context.Context) error {
	a.principal = nil
	a.signOuts++
	return nil
}

type testHooks struct {
	signInAs  *model.Principal
	authErr   error
	varyParam string
	optional  map[string]string
	hints     []model.IdentityHint
}

func (h *testHooks) AuthenticationHook(ctx context.Context, req *model.LaunchRequest, hint model.IdentityHint) error {
	h.hints = append(h.hints, hint)
	if h.authErr != nil {
		return h.authErr
	}
	if h.signInAs != nil {
		return req.Auth.SignIn(ctx, h.signInAs)
	}
	return nil
}

func (h *testHooks) VaryByKey(params model.LaunchParameters) (string, bool) {
	if h.varyParam == "" {
		return "", false
	}
	return params.Get(h.varyParam), true
}

func (h *testHooks) AnonymousRedirectTo(context.Context, *model.LaunchRequest, model.LaunchParameters) (string, error) {
	return "/anonymous", nil
}

func (h *testHooks) AuthenticatedRedirectTo(context.Context, *model.LaunchRequest, model.LaunchParameters) (string, error) {
	return "/authenticated", nil
}

func (h *testHooks) OptionalLtiParameters() map[string]string {
	return h.optional
}

func launchParams(userID string) url.Values {
	return url.Values{
		model.ParamLtiMessageType:  {"basic-lti-launch-request"},
		model.ParamLtiVersion:      {"LTI-1p0"},
		model.ParamResourceLinkID:  {"link-1"},
		model.ParamContextID:       {"course-1"},
		model.ParamUserID:          {userID},
		model.ParamPersonSourcedID: {"person-" + userID},
		model.ParamRoles:           {"Learner"},
	}
}

func signLaunch(t *testing.T, params url.Values) url.Values {
	t.Helper()
	signer := &oauth1.Signer{ConsumerKey: testConsumerKey, ConsumerSecret: testConsumerSecret}
	signed, err := signer.SignForm(http.MethodPost, testLaunchURL, params)
	require.NoError(t, err)
	return signed
}

type LaunchUseCaseTestSuite struct {
	suite.Suite
	repo     *data.MemoryLtiUserRepo
	sessions *data.MemorySessionStore
	hooks    *testHooks
	auth     *fakeAuth
	events   []model.LaunchReceived
	useCase  model.LaunchUseCase
}

func (suite *LaunchUseCaseTestSuite) SetupTest() {
	suite.repo = data.NewMemoryLtiUserRepo()
	suite.sessions = data.NewMemorySessionStore()
	suite.hooks = &testHooks{optional: map[string]string{}}
	suite.auth = &fakeAuth{}
	suite.events = nil

	signals := NewSignals(zap.NewNop())
	signals.SubscribeLaunchReceived(func(_ context.Context, event model.LaunchReceived) {
		suite.events = append(suite.events, event)
	})

	verifier := NewLaunchVerifier(&conf.Bootstrap{Lti: &conf.Lti{
		ToolConsumerKey:    testConsumerKey,
		ToolConsumerSecret: testConsumerSecret,
	}})

	uc, err := NewLaunchUseCase(suite.repo, suite.hooks, verifier, signals, zap.NewNop())
	suite.Require().NoError(err)
	suite.useCase = uc
}

func (suite *LaunchUseCaseTestSuite) request(method string, params url.Values) *model.LaunchRequest {
	return &model.LaunchRequest{
		Method:  method,
		URL:     testLaunchURL,
		Params:  params,
		Session: suite.sessions.Bind("session-1"),
		Auth:    suite.auth,
	}
}

func (suite *LaunchUseCaseTestSuite) sessionValue() (model.LaunchParameters, bool) {
	raw, ok, err := suite.sessions.Bind("session-1").Get(context.Background(), model.SessionKey)
	suite.Require().NoError(err)
	if !ok {
		return nil, false
	}
	var params model.LaunchParameters
	suite.Require().NoError(json.Unmarshal(raw, &params))
	return params, true
}

func (suite *LaunchUseCaseTestSuite) TestTamperedSignature() {
	params := signLaunch(suite.T(), launchParams("u1"))
	params.Set(model.ParamRoles, "Instructor")

	result, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, params))

	suite.Nil(result)
	var invalid *model.InvalidLaunchRequestError
	suite.Require().ErrorAs(err, &invalid)
	suite.ErrorIs(err, oauth1.ErrInvalidSignature)
	suite.Contains(err.Error(), "Invalid LTI Request")
	suite.Empty(suite.hooks.hints)
	suite.Equal(0, suite.repo.Count())
	_, ok := suite.sessionValue()
	suite.False(ok)
}

func (suite *LaunchUseCaseTestSuite) TestWrongConsumerKey() {
	signer := &oauth1.Signer{ConsumerKey: "other", ConsumerSecret: testConsumerSecret}
	params, err := signer.SignForm(http.MethodPost, testLaunchURL, launchParams("u1"))
	suite.Require().NoError(err)

	_, err = suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, params))

	suite.ErrorIs(err, oauth1.ErrInvalidConsumerKey)
}

func (suite *LaunchUseCaseTestSuite) TestAnonymousLaunchStoresSession() {
	result, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))

	suite.Require().NoError(err)
	suite.Equal(&model.LaunchResult{RedirectURL: "/anonymous"}, result)
	suite.Equal(0, suite.repo.Count())
	suite.Empty(suite.events)

	stored, ok := suite.sessionValue()
	suite.Require().True(ok)
	suite.Equal("u1", stored.Get(model.ParamUserID))
	for key := range stored {
		suite.NotContains(key, "oauth")
	}

	suite.Require().Len(suite.hooks.hints, 1)
	suite.Equal(model.IdentityHint{
		UserID:      "u1",
		Username:    "person-u1",
		ExtraParams: map[string]string{},
	}, suite.hooks.hints[0])
}

func (suite *LaunchUseCaseTestSuite) TestHookSignsIn() {
	principal := &model.Principal{ID: 10, Username: "lti:u1"}
	suite.hooks.signInAs = principal

	result, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))

	suite.Require().NoError(err)
	suite.Equal(&model.LaunchResult{RedirectURL: "/authenticated", Authenticated: true}, result)

	record, err := suite.repo.GetLtiUser(context.Background(), 10, "")
	suite.Require().NoError(err)
	suite.Equal("u1", record.Parameters.Get(model.ParamUserID))
	suite.Require().Len(suite.events, 1)
	suite.Equal(principal, suite.events[0].Principal)
	suite.Equal(record.ID, suite.events[0].Record.ID)
}

func (suite *LaunchUseCaseTestSuite) TestAuthenticatedLaunch() {
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}

	result, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))

	suite.Require().NoError(err)
	suite.True(result.Authenticated)
	suite.Equal("/authenticated", result.RedirectURL)
	suite.Equal(1, suite.repo.Count())
	suite.Len(suite.events, 1)
	suite.Empty(suite.hooks.hints)
	suite.Equal(0, suite.auth.signOuts)

	record, err := suite.repo.GetLtiUser(context.Background(), 5, "")
	suite.Require().NoError(err)
	for key := range record.Parameters {
		suite.NotContains(key, "oauth")
	}
}

func (suite *LaunchUseCaseTestSuite) TestRelaunchOverwrites() {
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}
	ctx := context.Background()

	_, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))
	suite.Require().NoError(err)

	second := launchParams("u1")
	second.Set(model.ParamRoles, "Instructor")
	_, err = suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), second)))
	suite.Require().NoError(err)

	suite.Equal(1, suite.repo.Count())
	suite.Len(suite.events, 2)
	suite.Equal(0, suite.auth.signOuts)
	record, err := suite.repo.GetLtiUser(ctx, 5, "")
	suite.Require().NoError(err)
	suite.Equal("Instructor", record.Parameters.Get(model.ParamRoles))
}

func (suite *LaunchUseCaseTestSuite) TestSessionResume() {
	ctx := context.Background()

	_, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))
	suite.Require().NoError(err)

	// 登录后回到启动地址, 请求本身没有 LTI 参数
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}
	result, err := suite.useCase.Launch(ctx, suite.request(http.MethodGet, url.Values{}))

	suite.Require().NoError(err)
	suite.True(result.Authenticated)
	record, err := suite.repo.GetLtiUser(ctx, 5, "")
	suite.Require().NoError(err)
	suite.Equal("u1", record.Parameters.Get(model.ParamUserID))
	_, ok := suite.sessionValue()
	suite.False(ok)
	suite.Len(suite.events, 1)
}

func (suite *LaunchUseCaseTestSuite) TestResumeWithoutSessionIsInvalid() {
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}

	_, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodGet, url.Values{}))

	var invalid *model.InvalidLaunchRequestError
	suite.ErrorAs(err, &invalid)
	suite.ErrorIs(err, oauth1.ErrMissingParameter)
}

func (suite *LaunchUseCaseTestSuite) TestFreshLaunchOverridesStaleSession() {
	ctx := context.Background()
	stale, _ := json.Marshal(model.LaunchParameters{model.ParamUserID: {"u1"}, model.ParamContextID: {"old"}})
	suite.Require().NoError(suite.sessions.Bind("session-1").Set(ctx, model.SessionKey, stale))

	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}
	fresh := launchParams("u1")
	fresh.Set(model.ParamResultSourcedID, "sourced-1")
	_, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), fresh)))
	suite.Require().NoError(err)

	record, err := suite.repo.GetLtiUser(ctx, 5, "")
	suite.Require().NoError(err)
	suite.Equal("course-1", record.Parameters.Get(model.ParamContextID))
	suite.Equal("sourced-1", record.Parameters.Get(model.ParamResultSourcedID))
	_, ok := suite.sessionValue()
	suite.False(ok)
}

func (suite *LaunchUseCaseTestSuite) TestIdentityMismatchSignsOut() {
	ctx := context.Background()
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}
	_, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))
	suite.Require().NoError(err)

	stale, _ := json.Marshal(model.LaunchParameters{model.ParamUserID: {"u1"}})
	suite.Require().NoError(suite.sessions.Bind("session-1").Set(ctx, model.SessionKey, stale))

	// 另一个 LTI 用户在同一个浏览器中启动
	result, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u2"))))

	suite.Require().NoError(err)
	suite.Equal(1, suite.auth.signOuts)
	suite.Nil(suite.auth.principal)
	suite.False(result.Authenticated)
	suite.Equal("/anonymous", result.RedirectURL)

	stored, ok := suite.sessionValue()
	suite.Require().True(ok)
	suite.Equal("u2", stored.Get(model.ParamUserID))

	// 原记录不受影响
	record, err := suite.repo.GetLtiUser(ctx, 5, "")
	suite.Require().NoError(err)
	suite.Equal("u1", record.Parameters.Get(model.ParamUserID))
}

func (suite *LaunchUseCaseTestSuite) TestIdentityMismatchReauthenticates() {
	ctx := context.Background()
	suite.auth.principal = &model.Principal{ID: 5, Username: "lti:u1"}
	_, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))
	suite.Require().NoError(err)

	suite.hooks.signInAs = &model.Principal{ID: 6, Username: "lti:u2"}
	result, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u2"))))

	suite.Require().NoError(err)
	suite.True(result.Authenticated)
	suite.Equal(1, suite.auth.signOuts)
	suite.Equal(int64(6), suite.auth.principal.ID)
	record, err := suite.repo.GetLtiUser(ctx, 6, "")
	suite.Require().NoError(err)
	suite.Equal("u2", record.Parameters.Get(model.ParamUserID))
}

func (suite *LaunchUseCaseTestSuite) TestWrongPrincipalOnResume() {
	ctx := context.Background()
	_, _, err := suite.repo.UpsertLtiUser(ctx, 5, "", model.LaunchParameters{model.ParamUserID: {"u1"}})
	suite.Require().NoError(err)

	pending, _ := json.Marshal(model.LaunchParameters{model.ParamUserID: {"u2"}})
	suite.Require().NoError(suite.sessions.Bind("session-1").Set(ctx, model.SessionKey, pending))
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}

	_, err = suite.useCase.Launch(ctx, suite.request(http.MethodGet, url.Values{}))

	suite.ErrorIs(err, model.ErrWrongPrincipal)
	suite.Empty(suite.events)
}

func (suite *LaunchUseCaseTestSuite) TestVarianceKey() {
	ctx := context.Background()
	suite.hooks.varyParam = model.ParamContextID
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}

	first := launchParams("u1")
	_, err := suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), first)))
	suite.Require().NoError(err)

	second := launchParams("u1")
	second.Set(model.ParamContextID, "course-2")
	_, err = suite.useCase.Launch(ctx, suite.request(http.MethodPost, signLaunch(suite.T(), second)))
	suite.Require().NoError(err)

	suite.Equal(2, suite.repo.Count())
	_, err = suite.repo.GetLtiUser(ctx, 5, "course-1")
	suite.NoError(err)
	_, err = suite.repo.GetLtiUser(ctx, 5, "course-2")
	suite.NoError(err)
}

func (suite *LaunchUseCaseTestSuite) TestVarianceKeyTooLong() {
	suite.hooks.varyParam = model.ParamContextID
	suite.auth.principal = &model.Principal{ID: 5, Username: "alice"}

	params := launchParams("u1")
	params.Set(model.ParamContextID, strings.Repeat("c", 191))
	_, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, signLaunch(suite.T(), params)))

	suite.ErrorIs(err, model.ErrVarianceKeyTooLong)
	suite.Equal(0, suite.repo.Count())
}

func (suite *LaunchUseCaseTestSuite) TestHookError() {
	suite.hooks.authErr = errors.New("directory unavailable")

	_, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))

	suite.ErrorIs(err, suite.hooks.authErr)
	_, ok := suite.sessionValue()
	suite.False(ok)
}

func (suite *LaunchUseCaseTestSuite) TestOptionalParametersInHint() {
	suite.hooks.optional = map[string]string{
		model.ParamRoles:     "roles",
		"custom_department": "department",
	}

	_, err := suite.useCase.Launch(context.Background(), suite.request(http.MethodPost, signLaunch(suite.T(), launchParams("u1"))))
	suite.Require().NoError(err)

	suite.Require().Len(suite.hooks.hints, 1)
	suite.Equal(map[string]string{"roles": "Learner"}, suite.hooks.hints[0].ExtraParams)
}

func TestLaunchUseCaseTestSuite(t *testing.T) {
	suite.Run(t, new(LaunchUseCaseTestSuite))
}

func TestLaunchVerifier_Idempotent(t *testing.T) {
	verifier := NewLaunchVerifier(&conf.Bootstrap{Lti: &conf.Lti{
		ToolConsumerKey:    testConsumerKey,
		ToolConsumerSecret: testConsumerSecret,
	}})
	req := &model.LaunchRequest{Method: http.MethodPost, URL: testLaunchURL, Params: signLaunch(t, launchParams("u1"))}

	first, err := verifier.Verify(context.Background(), req)
	require.NoError(t, err)
	second, err := verifier.Verify(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ExtractLaunchParameters(first), ExtractLaunchParameters(second))
}

// countingVerifier 统计校验次数
type countingVerifier struct {
	model.LaunchVerifier
	calls int
}

func (v *countingVerifier) Verify(ctx context.Context, req *model.LaunchRequest) (url.Values, error) {
	v.calls++
	return v.LaunchVerifier.Verify(ctx, req)
}

func TestLaunch_VerifiesOnce(t *testing.T) {
	verifier := &countingVerifier{LaunchVerifier: NewLaunchVerifier(&conf.Bootstrap{Lti: &conf.Lti{
		ToolConsumerKey:    testConsumerKey,
		ToolConsumerSecret: testConsumerSecret,
	}})}
	repo := data.NewMemoryLtiUserRepo()
	_, _, err := repo.UpsertLtiUser(context.Background(), 5, "", model.LaunchParameters{model.ParamUserID: {"u1"}})
	require.NoError(t, err)

	uc, err := NewLaunchUseCase(repo, &testHooks{}, verifier, NewSignals(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)

	_, err = uc.Launch(context.Background(), &model.LaunchRequest{
		Method:  http.MethodPost,
		URL:     testLaunchURL,
		Params:  signLaunch(t, launchParams("u1")),
		Session: data.NewMemorySessionStore().Bind("s"),
		Auth:    &fakeAuth{principal: &model.Principal{ID: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, verifier.calls)
}
