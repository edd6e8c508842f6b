package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"quantgate/internal/gate"
	"quantgate/internal/logger"
)

// Policy 决策覆盖策略表。极端超买与 buy-the-dip 的优先级在源头上就
// 有分歧，挪到可热更的策略文件里而不是写死在代码里。
type Policy struct {
	ExtremeOverbought gate.OverridePolicy `yaml:"extreme_overbought" json:"extreme_overbought"`
	Earnings          gate.EarningsPolicy `yaml:"earnings" json:"earnings"`
}

func DefaultPolicy() Policy {
	return Policy{
		ExtremeOverbought: gate.OverrideDip,
		Earnings:          gate.EarningsFailTiming,
	}
}

// policySchema 策略文件的 JSON Schema，加载时强校验，拒绝未知值。
const policySchema = `{
  "type": "object",
  "properties": {
    "extreme_overbought": {"enum": ["dip_override", "always", "off"]},
    "earnings": {"enum": ["fail_timing", "exclude"]}
  },
  "additionalProperties": false
}`

// PolicyListener 在策略文件重载成功后触发。
type PolicyListener func(Policy)

// PolicyRegistry 管理策略表：读取、schema 校验、文件变更热重载。
type PolicyRegistry struct {
	path   string
	schema *jsonschema.Schema

	mu        sync.RWMutex
	current   Policy
	loadedAt  time.Time
	listeners []PolicyListener
}

// NewPolicyRegistry 读取策略文件并监听更新。path 为空时使用缺省策略，
// 不监听文件。
func NewPolicyRegistry(path string) (*PolicyRegistry, error) {
	schema, err := compilePolicySchema()
	if err != nil {
		return nil, err
	}
	r := &PolicyRegistry{path: strings.TrimSpace(path), schema: schema, current: DefaultPolicy()}
	if r.path == "" {
		return r, nil
	}
	if err := r.reload(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("policy reload failed, keeping previous table: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Current 返回当前策略快照。
func (r *PolicyRegistry) Current() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnChange 注册重载回调。
func (r *PolicyRegistry) OnChange(fn PolicyListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *PolicyRegistry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read policy file failed: %w", err)
	}
	pol, err := parsePolicy(raw, r.schema)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.current = pol
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("policy table loaded: extreme_overbought=%s earnings=%s", pol.ExtremeOverbought, pol.Earnings)
	return nil
}

func (r *PolicyRegistry) notifyListeners() {
	r.mu.RLock()
	pol := r.current
	listeners := append([]PolicyListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb PolicyListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("policy listener panic: %v", rec)
				}
			}()
			cb(pol)
		}(fn)
	}
}

func parsePolicy(raw []byte, schema *jsonschema.Schema) (Policy, error) {
	var generic map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&generic); err != nil {
		return Policy{}, fmt.Errorf("parse policy yaml failed: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return Policy{}, fmt.Errorf("policy schema violation: %w", err)
	}
	pol := DefaultPolicy()
	blob, err := json.Marshal(generic)
	if err != nil {
		return Policy{}, err
	}
	if err := json.Unmarshal(blob, &pol); err != nil {
		return Policy{}, err
	}
	return pol, nil
}

func compilePolicySchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("policy.json", strings.NewReader(policySchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("policy.json")
}
