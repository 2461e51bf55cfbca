package alerter

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/model"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/rs/zerolog/log"
)

// StatsSource exposes the statistics of the current session.
type StatsSource interface {
	SessionID() string
	Statistics() model.SessionStatistics
}

// Alert is a rule that fired for a session.
type Alert struct {
	Rule       config.AlerterRule
	SessionID  string
	Statistics model.SessionStatistics
}

// Alerter evaluates session statistics against threshold rules and sends
// a notification when any of them is violated. Each rule fires at most once
// per session.
type Alerter struct {
	source        StatsSource
	rules         []config.AlerterRule
	notifier      model.Notifier
	checkInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once

	mu        sync.Mutex
	sessionID string
	fired     map[string]bool
}

// NewAlerter creates a new Alerter. notifier may be nil, in which case
// alerts are only logged.
func NewAlerter(cfg config.AlerterConfig, source StatsSource, notifier model.Notifier) (*Alerter, error) {
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("invalid check_interval for alerter: %s", cfg.CheckInterval)
	}
	return &Alerter{
		source:        source,
		rules:         cfg.Rules,
		notifier:      notifier,
		checkInterval: cfg.CheckInterval,
		stopChan:      make(chan struct{}),
		fired:         make(map[string]bool),
	}, nil
}

// Start begins the periodic evaluation of alert rules in the background.
func (a *Alerter) Start() {
	log.Info().Int("rules", len(a.rules)).Dur("interval", a.checkInterval).Msg("Alerter started")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Check()
			case <-a.stopChan:
				return
			}
		}
	}()
}

// Stop stops the evaluation loop and runs a final check.
func (a *Alerter) Stop() {
	a.stopOnce.Do(func() {
		log.Info().Msg("Stopping alerter")
		close(a.stopChan)
		a.wg.Wait()
		a.Check()
	})
}

// Evaluate returns the rules that newly fire for the current statistics.
func (a *Alerter) Evaluate() []Alert {
	sessionID := a.source.SessionID()
	s := a.source.Statistics()

	a.mu.Lock()
	defer a.mu.Unlock()
	if sessionID != a.sessionID {
		a.sessionID = sessionID
		a.fired = make(map[string]bool)
	}

	var alerts []Alert
	for _, rule := range a.rules {
		if a.fired[rule.Name] {
			continue
		}
		if s.AttackCount >= rule.MinAttacks && s.AttackRatio() >= rule.AttackRatio && s.AttackCount > 0 {
			a.fired[rule.Name] = true
			alerts = append(alerts, Alert{Rule: rule, SessionID: sessionID, Statistics: s})
		}
	}
	return alerts
}

// Check evaluates the rules and notifies about any that fired.
func (a *Alerter) Check() {
	alerts := a.Evaluate()
	if len(alerts) == 0 {
		return
	}
	for _, alert := range alerts {
		log.Warn().Str("rule", alert.Rule.Name).Str("session_id", alert.SessionID).
			Uint64("attacks", alert.Statistics.AttackCount).Float64("ratio", alert.Statistics.AttackRatio()).
			Msg("Alert rule triggered")
	}
	if a.notifier == nil {
		return
	}

	subject := fmt.Sprintf("NetSpectra IDS Alert Summary (%d Triggered)", len(alerts))
	body := markdown.ToHTML([]byte(Summary(alerts)), nil, nil)
	if err := a.notifier.Send(subject, string(body)); err != nil {
		log.Error().Err(err).Msg("Failed to send alert notification")
		return
	}
	log.Info().Int("alerts", len(alerts)).Msg("Alert notification sent")
}

// Summary renders alerts as a markdown report.
func Summary(alerts []Alert) string {
	var b strings.Builder
	b.WriteString("# NetSpectra IDS Alert Summary\n\n")
	b.WriteString("The following rules were triggered during the last check:\n\n")
	b.WriteString("| Rule | Session | Attacks | Captured | Attack ratio | Errors |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, alert := range alerts {
		s := alert.Statistics
		fmt.Fprintf(&b, "| %s | `%s` | %d | %d | %.1f%% | %d |\n",
			alert.Rule.Name, alert.SessionID, s.AttackCount, s.TotalCaptured, s.AttackRatio()*100, s.ErrorCount)
	}
	return b.String()
}
