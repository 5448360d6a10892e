package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/redisclient"
	"storefront/internal/shipping"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ShippingConfigService owns the process-wide shipping rule snapshot.
// Snapshots are immutable; Replace swaps in a new one.
type ShippingConfigService struct {
	store          ShippingRuleStore
	redis          *redisclient.Client
	eventPublisher EventPublisher
	cacheTTL       time.Duration
	logger         *zap.Logger

	group singleflight.Group

	mu         sync.RWMutex
	snapshot   *models.ShippingConfig
	generation uint64
}

// NewShippingConfigService creates a new shipping config service
func NewShippingConfigService(
	store ShippingRuleStore,
	redis *redisclient.Client,
	eventPublisher EventPublisher,
	cacheTTL time.Duration,
) *ShippingConfigService {
	return &ShippingConfigService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		cacheTTL:       cacheTTL,
		logger:         util.GetLogger(),
	}
}

// Snapshot returns the current shipping config, loading it once on a miss.
// Concurrent callers share a single load.
func (s *ShippingConfigService) Snapshot(ctx context.Context) (models.ShippingConfig, error) {
	s.mu.RLock()
	if s.snapshot != nil {
		cfg := *s.snapshot
		s.mu.RUnlock()
		return cfg, nil
	}
	generation := s.generation
	s.mu.RUnlock()

	// callers arriving after an invalidation must not join an older load
	key := fmt.Sprintf("shipping-config-%d", generation)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.load(ctx, generation)
	})
	if err != nil {
		return models.ShippingConfig{}, err
	}
	cfg := v.(models.ShippingConfig)

	s.mu.Lock()
	// an invalidation during the load makes the result stale
	if s.generation == generation && s.snapshot == nil {
		s.snapshot = &cfg
	}
	s.mu.Unlock()

	return cfg, nil
}

func (s *ShippingConfigService) currentGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *ShippingConfigService) load(ctx context.Context, generation uint64) (models.ShippingConfig, error) {
	ctx, span := util.StartSpan(ctx, "ShippingConfigService.load")
	defer span.End()

	cfg, found, err := s.redis.GetShippingConfig(ctx)
	if err != nil {
		s.logger.Warn("Failed to read cached shipping config", zap.Error(err))
	}
	if found {
		util.ShippingConfigReloadsTotal.WithLabelValues("cache").Inc()
		return cfg, nil
	}

	cfg, err = s.store.GetShippingConfig(ctx)
	if err != nil {
		return models.ShippingConfig{}, util.RecordError(span, fmt.Errorf("failed to load shipping rules: %w", err))
	}
	util.ShippingConfigReloadsTotal.WithLabelValues("database").Inc()

	s.cache(ctx, cfg, generation)

	s.logger.Info("Shipping config loaded", zap.Int("rules", len(cfg.Rules)))
	return cfg, nil
}

// cache shares cfg through Redis unless the rules changed since it was read
func (s *ShippingConfigService) cache(ctx context.Context, cfg models.ShippingConfig, generation uint64) {
	if s.currentGeneration() != generation {
		return
	}
	if err := s.redis.SetShippingConfig(ctx, cfg, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache shipping config", zap.Error(err))
		return
	}
	// an invalidation that landed between the check and the write
	if s.currentGeneration() != generation {
		if err := s.redis.DeleteShippingConfig(ctx); err != nil {
			s.logger.Warn("Failed to drop stale shipping config", zap.Error(err))
		}
	}
}

// Replace validates and stores a new rule set, then tells every instance to
// drop its snapshot. Rules without an id get one.
func (s *ShippingConfigService) Replace(ctx context.Context, rules []models.ShippingRule) (models.ShippingConfig, error) {
	ctx, span := util.StartSpan(ctx, "ShippingConfigService.Replace")
	defer span.End()

	if err := shipping.ValidateRules(rules); err != nil {
		return models.ShippingConfig{}, err
	}

	next := models.ShippingConfig{Rules: rules, UpdatedAt: time.Now().UTC()}.Clone()
	for i := range next.Rules {
		if next.Rules[i].ID == "" {
			next.Rules[i].ID = uuid.New().String()
		}
	}

	if err := s.store.ReplaceShippingRules(ctx, next.Rules, next.UpdatedAt); err != nil {
		return models.ShippingConfig{}, util.RecordError(span, fmt.Errorf("failed to store shipping rules: %w", err))
	}

	s.Invalidate(ctx)

	event := &models.ShippingConfigUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeShippingConfigUpdated,
			Timestamp: next.UpdatedAt,
		},
		RuleCount: len(next.Rules),
		UpdatedAt: next.UpdatedAt,
	}
	if err := s.eventPublisher.PublishShippingConfigUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ShippingConfigUpdated event", zap.Error(err))
	}

	s.logger.Info("Shipping rules replaced", zap.Int("rules", len(next.Rules)))
	return next, nil
}

// Invalidate drops the local snapshot and the shared cache entry
func (s *ShippingConfigService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.snapshot = nil
	s.generation++
	s.mu.Unlock()

	if err := s.redis.DeleteShippingConfig(ctx); err != nil {
		s.logger.Warn("Failed to drop cached shipping config", zap.Error(err))
	}
}

// HandleConfigUpdated reacts to a rule change made by any instance
func (s *ShippingConfigService) HandleConfigUpdated(ctx context.Context, event *models.ShippingConfigUpdatedEvent) error {
	_, span := util.StartSpan(ctx, "ShippingConfigService.HandleConfigUpdated")
	defer span.End()

	s.mu.Lock()
	s.snapshot = nil
	s.generation++
	s.mu.Unlock()

	s.logger.Info("Shipping config invalidated",
		zap.String("event_id", event.EventID),
		zap.Int("rules", event.RuleCount))
	return nil
}

// QuoteService prices a destination without a checkout
type QuoteService struct {
	config   *ShippingConfigService
	fallback shipping.Fallback
	policy   pricing.Policy
}

// NewQuoteService creates a new quote service
func NewQuoteService(config *ShippingConfigService, fallback shipping.Fallback, policy pricing.Policy) *QuoteService {
	return &QuoteService{config: config, fallback: fallback, policy: policy}
}

// Quote resolves the shipping method for dest and prices subtotal with it
func (q *QuoteService) Quote(ctx context.Context, dest models.Destination, subtotal decimal.Decimal) (models.ShippingMethod, models.Totals, error) {
	cfg, err := q.config.Snapshot(ctx)
	if err != nil {
		return models.ShippingMethod{}, models.Totals{}, err
	}

	method := shipping.Resolve(dest, cfg, q.fallback)
	util.ShippingResolutionsTotal.WithLabelValues(method.Source).Inc()
	return method, pricing.ComputeTotals(subtotal, method.Cost, q.policy), nil
}
