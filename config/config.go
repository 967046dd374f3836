package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	DB       DBConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Server   ServerConfig
	Dispatch DispatchConfig
	Fees     FeesConfig
	Monitor  MonitorConfig
}

type DBConfig struct {
	User     string
	Password string
	DBName   string
	SSLMode  string
	Host     string
	Port     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AMQPConfig struct {
	URL              string
	LocationExchange string
}

type ServerConfig struct {
	Addr string
}

type DispatchConfig struct {
	RadiusKm         float64
	FreshnessMinutes int
	GeohashPrecision uint
	LookupTimeoutSec int
}

type FeesConfig struct {
	// PlatformFeePercent is applied to grand_total when a trip request
	// arrives without an explicit platform fee.
	PlatformFeePercent int
}

type MonitorConfig struct {
	OnTheWayMinutes   int
	OnTripMinutes     int
	UnassignedMinutes int
	CancelledMinutes  int
}

var Cfg *Config

func InitConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("dispatch.radiuskm", 5.0)
	viper.SetDefault("dispatch.freshnessminutes", 10)
	viper.SetDefault("dispatch.geohashprecision", 5)
	viper.SetDefault("dispatch.lookuptimeoutsec", 3)
	viper.SetDefault("fees.platformfeepercent", 10)
	viper.SetDefault("monitor.onthewayminutes", 15)
	viper.SetDefault("monitor.ontripminutes", 25)
	viper.SetDefault("monitor.unassignedminutes", 20)
	viper.SetDefault("monitor.cancelledminutes", 60)
	viper.SetDefault("amqp.locationexchange", "location_fanout")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	err = viper.Unmarshal(&Cfg)
	if err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
