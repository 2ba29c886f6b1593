// Package main 提供 nostrsignerd 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	nostrsigner "github.com/dep2p/go-nostrsigner"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
)

var logger = log.Logger("cmd/nostrsignerd")

// passphraseEnv 密钥口令环境变量
//
// 口令只从环境变量读取，不提供命令行参数：进程参数对同机
// 其他用户可见（ps/procfs），环境变量不会。
const passphraseEnv = "NOSTRSIGNER_PASSPHRASE"

var (
	configFile  = flag.String("config", "signer.yaml", "配置文件路径")
	logLevel    = flag.String("log-level", "", "日志级别覆盖 (debug/info/warn/error)")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

// startTimeout 子系统启动上限
const startTimeout = 30 * time.Second

// stopTimeout 优雅关闭上限
const stopTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "nostrsignerd:", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(nostrsigner.VersionInfo())
		return nil
	}

	userCfg, err := nostrsigner.LoadConfigFile(*configFile)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		userCfg.LogLevel = *logLevel
	}
	applyLogConfig(userCfg)

	opts := []nostrsigner.Option{
		nostrsigner.WithUserConfig(userCfg),
	}
	if passphrase := os.Getenv(passphraseEnv); passphrase != "" {
		opts = append(opts, nostrsigner.WithPassphrase(passphrase))
	}

	daemon, err := nostrsigner.New(opts...)
	if err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), startTimeout)
	defer cancelStart()
	if err := daemon.Start(startCtx); err != nil {
		return err
	}

	for _, k := range daemon.Config().Keys {
		if url, err := daemon.BunkerURL(k.Name); err == nil {
			logger.Info("key serving", "key", k.Name, "bunker", url)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	return daemon.Stop(stopCtx)
}

// applyLogConfig 应用日志级别与输出目标
func applyLogConfig(cfg *nostrsigner.UserConfig) {
	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(slog.LevelDebug)
	case "warn":
		log.SetLevel(slog.LevelWarn)
	case "error":
		log.SetLevel(slog.LevelError)
	default:
		log.SetLevel(slog.LevelInfo)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("open log file failed, logging to stderr", "error", err)
			return
		}
		log.SetOutput(f)
	}
}
