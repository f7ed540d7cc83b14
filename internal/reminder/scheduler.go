package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mina-assistant/billing/internal/invoice"
	"github.com/mina-assistant/billing/internal/notify"
)

// Default brief times, in UTC. 03:30 and 12:30 UTC are 09:00 and 18:00
// IST; the weekly digest goes out Sunday 14:30 UTC (20:00 IST).
const (
	defaultMorning = "03:30"
	defaultEvening = "12:30"
	defaultWeekly  = "14:30"
)

// briefTime is a wall-clock dispatch slot
type briefTime struct {
	hour, minute int
}

func parseBriefTime(value string) (briefTime, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return briefTime{}, fmt.Errorf("invalid brief time %q, want HH:MM: %w", value, err)
	}
	return briefTime{hour: t.Hour(), minute: t.Minute()}, nil
}

func mustBriefTime(value string) briefTime {
	bt, err := parseBriefTime(value)
	if err != nil {
		panic(err)
	}
	return bt
}

// Scheduler delivers queued reminders and sends the daily billing
// briefs. It wakes once a minute.
type Scheduler struct {
	store    Store
	notifier notify.Notifier
	invoices *invoice.Service
	logger   *slog.Logger

	morning briefTime
	evening briefTime
	weekly  briefTime

	lastMorning string
	lastEvening string
	lastWeekly  string
}

func NewScheduler(store Store, notifier notify.Notifier, invoices *invoice.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		invoices: invoices,
		logger:   logger,
		morning:  mustBriefTime(defaultMorning),
		evening:  mustBriefTime(defaultEvening),
		weekly:   mustBriefTime(defaultWeekly),
	}
}

// WithBriefTimes overrides the dispatch slots, each "HH:MM" in UTC
func (s *Scheduler) WithBriefTimes(morning, evening, weekly string) (*Scheduler, error) {
	var err error
	if s.morning, err = parseBriefTime(morning); err != nil {
		return nil, err
	}
	if s.evening, err = parseBriefTime(evening); err != nil {
		return nil, err
	}
	if s.weekly, err = parseBriefTime(weekly); err != nil {
		return nil, err
	}
	return s, nil
}

// Run ticks until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.logger.Info("reminder scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now.UTC())
		}
	}
}

// Tick runs one scheduler pass for the given time
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.deliverDue(ctx, now)

	day := now.Format("2006-01-02")

	if now.Hour() == s.morning.hour && now.Minute() == s.morning.minute && s.lastMorning != day {
		s.lastMorning = day
		s.sendMorningBrief(ctx)
	}

	if now.Hour() == s.evening.hour && now.Minute() == s.evening.minute && s.lastEvening != day {
		s.lastEvening = day
		s.sendEveningSummary(ctx, now)
	}

	if now.Weekday() == time.Sunday && now.Hour() == s.weekly.hour && now.Minute() == s.weekly.minute && s.lastWeekly != day {
		s.lastWeekly = day
		s.sendWeeklyDigest(ctx, now)
	}
}

func (s *Scheduler) deliverDue(ctx context.Context, now time.Time) {
	due, err := s.store.Due(now)
	if err != nil {
		s.logger.Error("failed to load due reminders", "error", err)
		return
	}

	for _, r := range due {
		message := fmt.Sprintf("⏰ %s", r.Title)
		if r.Description != "" {
			message += "\n" + r.Description
		}

		r.Attempts++
		if err := s.notifier.Notify(ctx, r.Phone, message); err != nil {
			s.logger.Warn("reminder delivery failed",
				"reminder_id", r.ID, "phone", r.Phone,
				"attempt", r.Attempts, "error", err)
		} else {
			r.Delivered = true
		}

		if err := s.store.Update(r); err != nil {
			s.logger.Error("failed to update reminder", "reminder_id", r.ID, "error", err)
		}
	}
}

// sendMorningBrief tells each user how much is outstanding
func (s *Scheduler) sendMorningBrief(ctx context.Context) {
	due := s.dueByPhone()
	for phone, agg := range due {
		message := fmt.Sprintf("☀️ Good morning! You have %d invoice(s) due totaling ₹%s.",
			agg.count, formatMinor(agg.amount))
		s.send(ctx, phone, message, "morning brief")
	}
}

// sendEveningSummary recaps the day's billing activity
func (s *Scheduler) sendEveningSummary(ctx context.Context, now time.Time) {
	invoices, err := s.invoices.ListInvoices()
	if err != nil {
		s.logger.Error("failed to list invoices", "error", err)
		return
	}

	type daily struct {
		created int
		amount  int64
	}
	byPhone := map[string]*daily{}
	today := now.Format("2006-01-02")

	for _, inv := range invoices {
		if inv.Phone == "" || inv.CreatedAt.UTC().Format("2006-01-02") != today {
			continue
		}
		d, ok := byPhone[inv.Phone]
		if !ok {
			d = &daily{}
			byPhone[inv.Phone] = d
		}
		d.created++
		d.amount += inv.TotalAmount
	}

	for phone, d := range byPhone {
		message := fmt.Sprintf("🌙 Today you created %d invoice(s) worth ₹%s.",
			d.created, formatMinor(d.amount))
		s.send(ctx, phone, message, "evening summary")
	}
}

// sendWeeklyDigest recaps the past week per user
func (s *Scheduler) sendWeeklyDigest(ctx context.Context, now time.Time) {
	invoices, err := s.invoices.ListInvoices()
	if err != nil {
		s.logger.Error("failed to list invoices", "error", err)
		return
	}

	type weekly struct {
		count  int
		amount int64
		due    int64
	}
	byPhone := map[string]*weekly{}
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, inv := range invoices {
		if inv.Phone == "" || inv.CreatedAt.Before(weekAgo) {
			continue
		}
		w, ok := byPhone[inv.Phone]
		if !ok {
			w = &weekly{}
			byPhone[inv.Phone] = w
		}
		w.count++
		w.amount += inv.TotalAmount
		if inv.PaymentStatus == invoice.StatusDue {
			w.due += inv.TotalAmount
		}
	}

	for phone, w := range byPhone {
		message := fmt.Sprintf("📊 This week: %d invoice(s) worth ₹%s, ₹%s still due.",
			w.count, formatMinor(w.amount), formatMinor(w.due))
		s.send(ctx, phone, message, "weekly digest")
	}
}

type dueAggregate struct {
	count  int
	amount int64
}

func (s *Scheduler) dueByPhone() map[string]*dueAggregate {
	invoices, err := s.invoices.ListInvoices()
	if err != nil {
		s.logger.Error("failed to list invoices", "error", err)
		return nil
	}

	due := map[string]*dueAggregate{}
	for _, inv := range invoices {
		if inv.Phone == "" || inv.PaymentStatus != invoice.StatusDue {
			continue
		}
		agg, ok := due[inv.Phone]
		if !ok {
			agg = &dueAggregate{}
			due[inv.Phone] = agg
		}
		agg.count++
		agg.amount += inv.TotalAmount
	}
	return due
}

func (s *Scheduler) send(ctx context.Context, phone, message, kind string) {
	if err := s.notifier.Notify(ctx, phone, message); err != nil {
		s.logger.Warn("brief delivery failed", "kind", kind, "phone", phone, "error", err)
	}
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
