package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError 配置校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置错误 [%s]: %s", e.Field, e.Message)
}

// ValidationErrors 多个配置校验错误
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors 是否有错误
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs ValidationErrors

	if len(c.Relays) == 0 {
		errs = append(errs, ValidationError{"relays", "至少需要一个中继 URL"})
	}
	for _, r := range c.Relays {
		if err := validateRelayURL(r); err != nil {
			errs = append(errs, ValidationError{"relays", err.Error()})
		}
	}

	if c.DataDir == "" {
		errs = append(errs, ValidationError{"data_dir", "存储目录不能为空"})
	}

	if c.Health.TickInterval <= 0 {
		errs = append(errs, ValidationError{"health.tick_interval", "必须为正"})
	}
	if c.Health.ProbeTimeout <= 0 {
		errs = append(errs, ValidationError{"health.probe_timeout", "必须为正"})
	}
	if c.Health.ProbeTimeout >= c.Health.TickInterval {
		errs = append(errs, ValidationError{"health.probe_timeout", "必须小于节拍间隔，否则探测会相互重叠"})
	}
	if c.Health.SleepFactor < 2 {
		errs = append(errs, ValidationError{"health.sleep_factor", "至少为 2"})
	}

	if c.Pool.HealthFailureThreshold < 1 {
		errs = append(errs, ValidationError{"pool.health_failure_threshold", "至少为 1"})
	}

	seen := make(map[string]bool, len(c.Keys))
	for _, k := range c.Keys {
		if k.Name == "" {
			errs = append(errs, ValidationError{"keys.name", "密钥名不能为空"})
			continue
		}
		if seen[k.Name] {
			errs = append(errs, ValidationError{"keys.name", fmt.Sprintf("密钥名 %q 重复", k.Name)})
		}
		seen[k.Name] = true
		for _, r := range k.Relays {
			if err := validateRelayURL(r); err != nil {
				errs = append(errs, ValidationError{"keys.relays", err.Error()})
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("中继 URL %q 无法解析", raw)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("中继 URL %q 必须是 ws:// 或 wss://", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("中继 URL %q 缺少主机名", raw)
	}
	return nil
}
