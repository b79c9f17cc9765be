package config

import (
	"fmt"
	"os"
	"strings"

	confv1 "lti-tool-provider/internal/conf/v1"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// EnvPrefix 环境变量覆盖前缀, 例如 LTI_LTI_TOOL_CONSUMER_SECRET
const EnvPrefix = "LTI"

// Module 提供 Fx 模块
var Module = fx.Module("config",
	fx.Provide(
		// 提供配置加载函数
		func() (*confv1.Bootstrap, error) {
			// 从环境变量获取配置路径，如果没有设置则使用默认路径
			configPath := getConfigPath()

			conf, err := Init(configPath)
			if err != nil {
				return nil, err
			}
			// 后续模块直接读取各配置段, 加载时即校验
			if err := ValidateConfig(conf); err != nil {
				return nil, err
			}
			fmt.Printf("Configuration loaded successfully from: %s\n", configPath)
			return conf, nil
		},
	),
)

// Init 从本地 YAML 文件加载配置, 环境变量可覆盖文件中已声明的键
func Init(configPath string) (*confv1.Bootstrap, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return decode(v.AllSettings())
}

func decode(settings map[string]interface{}) (*confv1.Bootstrap, error) {
	localConf := &confv1.Bootstrap{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: nil,
		// conf 结构体统一使用 json tag
		TagName: "json",
		Result:  localConf,
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config map into struct: %w", err)
	}
	return localConf, nil
}

// getConfigPath 从环境变量获取配置路径
func getConfigPath() string {
	// 优先使用环境变量 CONFIG_PATH
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	// 在Docker容器中，配置文件位于/app/configs/config.yaml
	if isRunningInContainer() {
		return "/app/configs/config.yaml"
	}

	return "configs/config.yaml"
}

// isRunningInContainer 检查是否在容器中运行
func isRunningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	if cgroup, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		if strings.Contains(string(cgroup), "docker") || strings.Contains(string(cgroup), "kubepods") {
			return true
		}
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" || os.Getenv("CONTAINER") != "" {
		return true
	}

	return false
}

// ValidateConfig 验证配置的完整性
func ValidateConfig(conf *confv1.Bootstrap) error {
	if conf == nil {
		return fmt.Errorf("configuration is nil")
	}

	if conf.Server == nil || conf.Server.Http == nil {
		return fmt.Errorf("server configuration is required")
	}

	if conf.Data == nil || conf.Data.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	if conf.Data.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}

	if conf.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	// LTI 启动校验和成绩回传签名都依赖消费者凭证
	if conf.Lti == nil || conf.Lti.ToolConsumerKey == "" || conf.Lti.ToolConsumerSecret == "" {
		return fmt.Errorf("lti tool_consumer_key and tool_consumer_secret are required")
	}

	return nil
}
