package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Points PointsConfig `mapstructure:"points"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	AdminToken string `mapstructure:"admin_token"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PointsEvent     string `mapstructure:"points_event"`
	RedemptionEvent string `mapstructure:"redemption_event"`
}

// PointsConfig 积分经济业务参数
// 奖励资格窗口（"今天"）统一按 Timezone 计算，避免用户换设备换时区后重复领取
type PointsConfig struct {
	Timezone               string `mapstructure:"timezone"`
	EarnExpireDays         int    `mapstructure:"earn_expire_days"`
	DailyLoginPoints       int64  `mapstructure:"daily_login_points"`
	StreakBonus7           int64  `mapstructure:"streak_bonus_7"`
	StreakBonus30          int64  `mapstructure:"streak_bonus_30"`
	ToolUsePoints          int64  `mapstructure:"tool_use_points"`
	ToolUseDailyCap        int64  `mapstructure:"tool_use_daily_cap"`
	FirstClientPoints      int64  `mapstructure:"first_client_points"`
	ReferralReferrerPoints int64  `mapstructure:"referral_referrer_points"`
	ReferralWelcomePoints  int64  `mapstructure:"referral_welcome_points"`
	ReferralCodeMinLen     int    `mapstructure:"referral_code_min_len"`
	ReferralCodeMaxLen     int    `mapstructure:"referral_code_max_len"`
	MaxRetryCount          int    `mapstructure:"max_retry_count"`

	location *time.Location
}

// Location 返回资格窗口时区（启动时加载）
func (p *PointsConfig) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	loc, err := time.LoadLocation(config.Points.Timezone)
	if err != nil {
		log.Fatalf("加载时区失败: %v", err)
	}
	config.Points.location = loc

	GlobalConfig = config
	return config
}
