package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pontos/internal/models"
	"pontos/internal/money"
)

// SettingsCategory is the SystemSetting category read by the engine.
const SettingsCategory = "wallet"

// SystemSetting keys understood by EngineSettings.Apply.
const (
	KeyRiskScoreCeiling    = "risk.score_ceiling"
	KeyDailyLimitDefault   = "limits.daily_default"
	KeyMonthlyLimitDefault = "limits.monthly_default"
	KeyPerTxLimitDefault   = "limits.per_tx_default"
	KeyHardCeiling         = "limits.hard_ceiling"
	KeyRefundWindow        = "refund.window"
	KeyPendingSLA          = "pending.sla"
	KeyLiquidationLagPref  = "liquidation.lag."
)

// EngineSettings are the policy values consumed by the risk evaluator, the
// state machine and the sweeps.
type EngineSettings struct {
	RiskScoreCeiling    int           `mapstructure:"risk_score_ceiling"`
	DailyLimitDefault   money.Amount  `mapstructure:"daily_limit_default"`
	MonthlyLimitDefault money.Amount  `mapstructure:"monthly_limit_default"`
	PerTxLimitDefault   money.Amount  `mapstructure:"per_tx_limit_default"`
	HardCeiling         money.Amount  `mapstructure:"hard_ceiling"` // 0 disables
	RefundWindow        time.Duration `mapstructure:"refund_window"`
	PendingSLA          time.Duration `mapstructure:"pending_sla"`
	BoletoLag           time.Duration `mapstructure:"boleto_liquidation_lag"`

	LiquidationLag map[models.TransactionType]time.Duration `mapstructure:"-"`
}

func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		RiskScoreCeiling:    70,
		DailyLimitDefault:   500000,
		MonthlyLimitDefault: 5000000,
		PerTxLimitDefault:   200000,
		RefundWindow:        7 * 24 * time.Hour,
		PendingSLA:          30 * time.Minute,
		BoletoLag:           48 * time.Hour,
		LiquidationLag: map[models.TransactionType]time.Duration{
			models.TransactionTypeBoletoDeposit: 48 * time.Hour,
		},
	}
}

// Validate normalizes the lag table and rejects negative policy values.
func (s *EngineSettings) Validate() error {
	if s.LiquidationLag == nil {
		s.LiquidationLag = map[models.TransactionType]time.Duration{}
	}
	if s.BoletoLag > 0 {
		s.LiquidationLag[models.TransactionTypeBoletoDeposit] = s.BoletoLag
	}
	if s.RefundWindow < 0 || s.PendingSLA < 0 {
		return fmt.Errorf("engine durations must not be negative")
	}
	if s.DailyLimitDefault < 0 || s.MonthlyLimitDefault < 0 || s.PerTxLimitDefault < 0 || s.HardCeiling < 0 {
		return fmt.Errorf("engine limits must not be negative")
	}
	for t, lag := range s.LiquidationLag {
		if !t.Deposit() {
			return fmt.Errorf("liquidation lag is only allowed for deposit types, got %s", t)
		}
		if lag < 0 {
			return fmt.Errorf("liquidation lag for %s must not be negative", t)
		}
	}
	return nil
}

// LagFor returns the settlement lag of a transaction type; zero means the
// type settles immediately.
func (s EngineSettings) LagFor(t models.TransactionType) time.Duration {
	if !t.Deposit() {
		return 0
	}
	return s.LiquidationLag[t]
}

// Apply overlays SystemSetting rows of the wallet category on top of s.
// Unknown keys are ignored; malformed values are reported.
func (s EngineSettings) Apply(rows []models.SystemSetting) (EngineSettings, error) {
	out := s
	out.LiquidationLag = make(map[models.TransactionType]time.Duration, len(s.LiquidationLag))
	for k, v := range s.LiquidationLag {
		out.LiquidationLag[k] = v
	}

	for _, row := range rows {
		if row.Category != "" && row.Category != SettingsCategory {
			continue
		}
		value := strings.TrimSpace(row.Value)
		var err error
		switch {
		case row.Key == KeyRiskScoreCeiling:
			out.RiskScoreCeiling, err = strconv.Atoi(value)
		case row.Key == KeyDailyLimitDefault:
			out.DailyLimitDefault, err = parseAmount(value)
		case row.Key == KeyMonthlyLimitDefault:
			out.MonthlyLimitDefault, err = parseAmount(value)
		case row.Key == KeyPerTxLimitDefault:
			out.PerTxLimitDefault, err = parseAmount(value)
		case row.Key == KeyHardCeiling:
			out.HardCeiling, err = parseAmount(value)
		case row.Key == KeyRefundWindow:
			out.RefundWindow, err = time.ParseDuration(value)
		case row.Key == KeyPendingSLA:
			out.PendingSLA, err = time.ParseDuration(value)
		case strings.HasPrefix(row.Key, KeyLiquidationLagPref):
			t := models.TransactionType(strings.TrimPrefix(row.Key, KeyLiquidationLagPref))
			if !t.Valid() {
				err = fmt.Errorf("unknown transaction type %q", t)
				break
			}
			if !t.Deposit() {
				err = fmt.Errorf("%s settles immediately and takes no liquidation lag", t)
				break
			}
			var lag time.Duration
			if lag, err = time.ParseDuration(value); err == nil {
				out.LiquidationLag[t] = lag
				if t == models.TransactionTypeBoletoDeposit {
					out.BoletoLag = lag
				}
			}
		}
		if err != nil {
			return s, fmt.Errorf("invalid system setting %s=%q: %w", row.Key, row.Value, err)
		}
	}

	if err := out.Validate(); err != nil {
		return s, err
	}
	return out, nil
}

// parseAmount reads limits stored as integer minor units.
func parseAmount(v string) (money.Amount, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return money.Amount(n), nil
}
