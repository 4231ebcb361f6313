package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohitkumar/flowengine/agent"
	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	def := config.Default()
	engineConf := def.EngineConfig
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("storage-impl", string(def.StorageType), "implementation of underline storage: memory, redis or sqlite")
	cmd.Flags().String("redis-addr", strings.Join(def.RedisConfig.Addrs, ","), "comma separated list of redis host:port")
	cmd.Flags().String("namespace", def.RedisConfig.Namespace, "namespace used in storage")
	cmd.Flags().String("sqlite-dsn", def.SqliteConfig.DSN, "sqlite data source name")
	cmd.Flags().String("encoder-decoder", string(def.EncoderDecoderType), "encoder decoder used to serialzie data")
	cmd.Flags().Int("http-port", def.HttpPort, "http port for operational endpoints")
	cmd.Flags().String("log-level", def.LogLevel, "log level: debug, info, warn or error")
	cmd.Flags().Int("advance-workers", engineConf.AdvanceWorkers, "lanes advancing flow nodes")
	cmd.Flags().Int("advance-queue-size", engineConf.AdvanceQueueSize, "capacity of the advancement queue")
	cmd.Flags().Int("bus-workers", def.BusConfig.Workers, "workers per event bus queue")
	cmd.Flags().Int("bus-queue-size", def.BusConfig.QueueSize, "capacity of each event bus queue")
	cmd.Flags().Int("bus-publish-attempts", def.BusConfig.PublishAttempts, "attempts to publish an event to a full queue")
	cmd.Flags().String("retry-policy", string(def.RetryConfig.Policy), "retry back-off: fixed or exponential")
	cmd.Flags().Duration("retry-initial", def.RetryConfig.Initial, "first retry delay")
	cmd.Flags().Duration("retry-max", def.RetryConfig.Max, "upper bound of the retry delay")
	cmd.Flags().Float64("retry-multiplier", def.RetryConfig.Multiplier, "growth factor of exponential retry delay")
	cmd.Flags().Int("max-retries", engineConf.MaxRetries, "retries of a failed task before its context stays in error")
	cmd.Flags().Duration("retry-scan-interval", engineConf.RetryScanInterval, "interval of the retry scanner")
	cmd.Flags().Int("retry-scan-batch", engineConf.RetryScanBatch, "retry records taken per scan")
	cmd.Flags().Duration("recovery-interval", engineConf.RecoveryInterval, "interval of the pending work recovery sweep")
	cmd.Flags().Duration("http-call-timeout", engineConf.HttpCallTimeout, "default timeout of http tasks")
	cmd.Flags().Duration("script-timeout", engineConf.ScriptTimeout, "default timeout of script tasks")
	cmd.Flags().Duration("remote-call-timeout", engineConf.RemoteCallTimeout, "upper bound of remote tasks")
	cmd.Flags().Duration("lock-timeout", def.LockConfig.Timeout, "lease lifetime without refresh")
	cmd.Flags().Duration("lock-cleanup-interval", def.LockConfig.CleanupInterval, "interval of the stale lease sweeper")
	cmd.Flags().Duration("lock-wait", def.LockConfig.Wait, "how long advancement waits for a lease")
	cmd.Flags().String("nats-url", def.NatsConfig.URL, "nats server for external notifications, empty disables them")
	cmd.Flags().String("nats-subject", def.NatsConfig.Subject, "subject prefix of external notifications")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return err
			}
		}
	}

	c.cfg.Config = config.Default()
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.SqliteConfig.DSN = viper.GetString("sqlite-dsn")
	c.cfg.EncoderDecoderType = config.EncoderDecoderType(viper.GetString("encoder-decoder"))
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.LogLevel = viper.GetString("log-level")

	c.cfg.EngineConfig.AdvanceWorkers = viper.GetInt("advance-workers")
	c.cfg.EngineConfig.AdvanceQueueSize = viper.GetInt("advance-queue-size")
	c.cfg.EngineConfig.MaxRetries = viper.GetInt("max-retries")
	c.cfg.EngineConfig.RetryScanInterval = viper.GetDuration("retry-scan-interval")
	c.cfg.EngineConfig.RetryScanBatch = viper.GetInt("retry-scan-batch")
	c.cfg.EngineConfig.RecoveryInterval = viper.GetDuration("recovery-interval")
	c.cfg.EngineConfig.HttpCallTimeout = viper.GetDuration("http-call-timeout")
	c.cfg.EngineConfig.ScriptTimeout = viper.GetDuration("script-timeout")
	c.cfg.EngineConfig.RemoteCallTimeout = viper.GetDuration("remote-call-timeout")

	c.cfg.BusConfig.Workers = viper.GetInt("bus-workers")
	c.cfg.BusConfig.QueueSize = viper.GetInt("bus-queue-size")
	c.cfg.BusConfig.PublishAttempts = viper.GetInt("bus-publish-attempts")

	c.cfg.RetryConfig.Policy = config.RetryPolicyType(viper.GetString("retry-policy"))
	c.cfg.RetryConfig.Initial = viper.GetDuration("retry-initial")
	c.cfg.RetryConfig.Max = viper.GetDuration("retry-max")
	c.cfg.RetryConfig.Multiplier = viper.GetFloat64("retry-multiplier")

	c.cfg.LockConfig.Timeout = viper.GetDuration("lock-timeout")
	c.cfg.LockConfig.CleanupInterval = viper.GetDuration("lock-cleanup-interval")
	c.cfg.LockConfig.Wait = viper.GetDuration("lock-wait")

	c.cfg.NatsConfig.URL = viper.GetString("nats-url")
	c.cfg.NatsConfig.Subject = viper.GetString("nats-subject")
	return logger.Init(c.cfg.LogLevel)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	defer logger.Sync()
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	err = agent.Start()
	if err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "flowengine",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
