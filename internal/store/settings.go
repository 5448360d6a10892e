package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

type shippingRuleRow struct {
	ID        string          `db:"id"`
	Position  int             `db:"position"`
	Kind      string          `db:"kind"`
	Value     string          `db:"value"`
	Cost      decimal.Decimal `db:"cost"`
	MinDays   int             `db:"min_days"`
	MaxDays   int             `db:"max_days"`
	AllowCOD  bool            `db:"allow_cod"`
	IsActive  bool            `db:"is_active"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// GetShippingConfig loads the shipping rules in their configured order
func (s *Store) GetShippingConfig(ctx context.Context) (models.ShippingConfig, error) {
	var rows []shippingRuleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, position, kind, value, cost, min_days, max_days, allow_cod, is_active, updated_at
		FROM shipping_rules ORDER BY position`)
	if err != nil {
		return models.ShippingConfig{}, err
	}

	cfg := models.ShippingConfig{Rules: make([]models.ShippingRule, 0, len(rows))}
	for _, row := range rows {
		target, err := models.NewTarget(models.RuleKind(row.Kind), row.Value)
		if err != nil {
			return models.ShippingConfig{}, fmt.Errorf("shipping rule %s: %w", row.ID, err)
		}
		cfg.Rules = append(cfg.Rules, models.ShippingRule{
			ID:           row.ID,
			Target:       target,
			Cost:         row.Cost,
			DeliveryDays: models.DeliveryDays{Min: row.MinDays, Max: row.MaxDays},
			AllowCOD:     row.AllowCOD,
			IsActive:     row.IsActive,
		})
		if row.UpdatedAt.After(cfg.UpdatedAt) {
			cfg.UpdatedAt = row.UpdatedAt
		}
	}
	return cfg, nil
}

// ReplaceShippingRules swaps the whole rule set in one transaction
func (s *Store) ReplaceShippingRules(ctx context.Context, rules []models.ShippingRule, updatedAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM shipping_rules"); err != nil {
		return fmt.Errorf("failed to clear shipping rules: %w", err)
	}

	for i, rule := range rules {
		row := shippingRuleRow{
			ID:        rule.ID,
			Position:  i,
			Kind:      string(rule.Target.Kind()),
			Value:     rule.Target.Value(),
			Cost:      rule.Cost,
			MinDays:   rule.DeliveryDays.Min,
			MaxDays:   rule.DeliveryDays.Max,
			AllowCOD:  rule.AllowCOD,
			IsActive:  rule.IsActive,
			UpdatedAt: updatedAt,
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO shipping_rules (id, position, kind, value, cost, min_days, max_days, allow_cod, is_active, updated_at)
			VALUES (:id, :position, :kind, :value, :cost, :min_days, :max_days, :allow_cod, :is_active, :updated_at)`,
			row)
		if err != nil {
			return fmt.Errorf("failed to insert shipping rule %s: %w", rule.ID, err)
		}
	}

	return tx.Commit()
}

// GetPaymentMethods lists payment methods in display order
func (s *Store) GetPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := s.db.SelectContext(ctx, &methods,
		"SELECT code, label, enabled, sort_order FROM payment_methods ORDER BY sort_order, code")
	return methods, err
}

// SetPaymentMethodEnabled toggles a payment method
func (s *Store) SetPaymentMethodEnabled(ctx context.Context, code string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payment_methods SET enabled = $1 WHERE code = $2", enabled, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment method %s: %w", code, ErrNotFound)
	}
	return nil
}
