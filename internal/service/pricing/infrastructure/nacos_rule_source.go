package infrastructure

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"pricewise/internal/pkg/metrics"
	"pricewise/internal/service/pricing/domain"
)

// ConfigCenter 是 NacosRuleSource 需要的配置中心能力，*nacos.Client 满足该接口
type ConfigCenter interface {
	GetConfig(dataID, group string) (string, error)
	ListenConfig(dataID, group string, onChange func(data string)) error
}

// RuleDocument 是配置中心里规则集合的 YAML 格式
type RuleDocument struct {
	Rules []domain.PricingRule `yaml:"rules"`
}

// NacosRuleSource 从配置中心加载规则，变更时整体原子替换。
// 新版本校验失败时保留旧版本继续服务。
type NacosRuleSource struct {
	center  ConfigCenter
	dataID  string
	group   string
	engine  *domain.RuleEngine
	metrics *metrics.PricingMetrics

	rules atomic.Pointer[[]domain.PricingRule]
}

func NewNacosRuleSource(center ConfigCenter, dataID, group string, engine *domain.RuleEngine, m *metrics.PricingMetrics) *NacosRuleSource {
	return &NacosRuleSource{center: center, dataID: dataID, group: group, engine: engine, metrics: m}
}

// Start 读取初始规则并订阅后续变更
func (s *NacosRuleSource) Start() error {
	content, err := s.center.GetConfig(s.dataID, s.group)
	if err != nil {
		return errors.Wrapf(err, "load rules %s", s.dataID)
	}
	if err := s.Reload(content); err != nil {
		return err
	}
	return s.center.ListenConfig(s.dataID, s.group, func(data string) {
		if err := s.Reload(data); err != nil {
			zlog.Error().Err(err).Str("data_id", s.dataID).Msg("Rejected rule update, keeping previous rule set")
		}
	})
}

// Reload 解析并校验一份规则文档，成功后替换当前规则
func (s *NacosRuleSource) Reload(content string) error {
	var doc RuleDocument
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		s.observe("error")
		return errors.Wrap(err, "parse rule document")
	}
	if err := s.engine.ValidateRules(doc.Rules); err != nil {
		s.observe("error")
		return err
	}
	rules := doc.Rules
	s.rules.Store(&rules)
	s.observe("success")
	zlog.Info().Int("rules", len(rules)).Str("data_id", s.dataID).Msg("✅ Rule set reloaded")
	return nil
}

// ActiveRules 返回当前规则集中启用的规则
func (s *NacosRuleSource) ActiveRules(_ context.Context) ([]domain.PricingRule, error) {
	p := s.rules.Load()
	if p == nil {
		return nil, nil
	}
	out := make([]domain.PricingRule, 0, len(*p))
	for _, r := range *p {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *NacosRuleSource) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.RuleReloads.WithLabelValues(outcome).Inc()
	}
}
