package v1

// Bootstrap 服务启动配置根节点
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	Auth     *Auth     `json:"auth"`
	Lti      *Lti      `json:"lti"`
	Log      *Log      `json:"log"`
	Trace    *Trace    `json:"trace"`
	Registry *Registry `json:"registry"`
}

type Server struct {
	Http *Server_HTTP `json:"http"`
}

type Server_HTTP struct {
	Addr string `json:"addr"`
	// LTI 启动入口路径, 默认 /lti/
	LaunchPath string `json:"launch_path"`
	// gorilla/sessions cookie 签名密钥
	SessionSecret string `json:"session_secret"`
	SecureCookies bool   `json:"secure_cookies"`
	// 反向代理后面部署时根据 X-Forwarded-* 还原签名 URL
	TrustForwardedHeaders bool `json:"trust_forwarded_headers"`
}

type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
}

type Data_Database struct {
	Host     string `json:"host"`
	Port     int32  `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DbName   string `json:"db_name"`
	SslMode  string `json:"ssl_mode"`
	Timezone string `json:"timezone"`
}

type Data_Redis struct {
	Host         string `json:"host"`
	Port         int32  `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Db           int32  `json:"db"`
	DialTimeout  int32  `json:"dial_timeout"`
	ReadTimeout  int32  `json:"read_timeout"`
	WriteTimeout int32  `json:"write_timeout"`
	PoolSize     int32  `json:"pool_size"`
	MinIdleConns int32  `json:"min_idle_conns"`
}

type Auth struct {
	JwtSecret               string `json:"jwt_secret"`
	JwtExpireHours          int32  `json:"jwt_expire_hours"`
	ChallengeTimeoutSeconds int32  `json:"challenge_timeout_seconds"`
	// 保存主体 JWT 的 cookie 名称
	CookieName string `json:"cookie_name"`
}

// Lti 工具提供方配置
type Lti struct {
	ToolConsumerKey        string `json:"tool_consumer_key"`
	ToolConsumerSecret     string `json:"tool_consumer_secret"`
	TimestampWindowSeconds int32  `json:"timestamp_window_seconds"`
	SessionTtlSeconds      int32  `json:"session_ttl_seconds"`
	LoginUrl               string `json:"login_url"`
	RedirectAfterLaunch    string `json:"redirect_after_launch"`
	AutoProvision          bool   `json:"auto_provision"`
	VaryByParameter        string `json:"vary_by_parameter"`
	// LTI 参数名 -> 认证钩子参数名
	OptionalParameters map[string]string `json:"optional_parameters"`
	StrictGradeSync    bool              `json:"strict_grade_sync"`
	// 成绩 RPC 的服务令牌, 为空时拒绝所有调用
	OutcomeApiToken string `json:"outcome_api_token"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type Trace struct {
	Endpoint    string `json:"endpoint"`
	Insecure    bool   `json:"insecure"`
	ServiceName string `json:"service_name"`
}

type Registry struct {
	Consul *Registry_Consul `json:"consul"`
}

type Registry_Consul struct {
	Address        string   `json:"address"`
	ServiceId      string   `json:"service_id"`
	ServiceAddress string   `json:"service_address"`
	ServicePort    int32    `json:"service_port"`
	HealthCheckUrl string   `json:"health_check_url"`
	Tags           []string `json:"tags"`
}
