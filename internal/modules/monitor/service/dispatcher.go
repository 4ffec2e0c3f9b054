package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	"appguard/internal/platform/id"
	"appguard/internal/platform/metrics"
)

const (
	defaultPresentTimeout   = 5 * time.Second
	defaultQueueSize        = 32
	defaultBreakerFailures  = 3
	defaultBreakerOpenDelay = time.Minute
)

type DispatcherOptions struct {
	Timeout   time.Duration
	QueueSize int
	IDs       id.Generator
	Logger    *slog.Logger
	Record    activityRecorder

	// BreakerFailures consecutive failures open a channel for BreakerOpenDelay.
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

type channel struct {
	presenter monitorout.Presenter
	breaker   *gobreaker.CircuitBreaker
}

// Dispatcher turns decisions into alerts and presents them off the polling
// path. Channels are tried in order; a failed channel falls through to the
// next one and media alerts degrade to text when no media channel delivers.
type Dispatcher struct {
	channels []channel
	queue    chan domain.Alert
	timeout  time.Duration
	ids      id.Generator
	logger   *slog.Logger
	record   activityRecorder
}

func NewDispatcher(presenters []monitorout.Presenter, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPresentTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.IDs == nil {
		opts.IDs = id.UUID{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerOpenDelay <= 0 {
		opts.BreakerOpenDelay = defaultBreakerOpenDelay
	}
	logger := opts.Logger.With("component", "dispatcher")

	channels := make([]channel, 0, len(presenters))
	for _, p := range presenters {
		failures := opts.BreakerFailures
		channels = append(channels, channel{
			presenter: p,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        p.Name(),
				MaxRequests: 1,
				Timeout:     opts.BreakerOpenDelay,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= failures
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Warn("channel breaker state changed", "channel", name, "from", from.String(), "to", to.String())
					metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
				},
			}),
		})
		metrics.BreakerState.WithLabelValues(p.Name()).Set(0)
	}

	return &Dispatcher{
		channels: channels,
		queue:    make(chan domain.Alert, opts.QueueSize),
		timeout:  opts.Timeout,
		ids:      opts.IDs,
		logger:   logger,
		record:   opts.Record,
	}
}

// Dispatch enqueues an alert for d. It never blocks; a full queue drops the
// alert and reports false.
func (d *Dispatcher) Dispatch(dec domain.Decision) bool {
	alert := domain.NewAlert(d.ids.New(), dec)
	select {
	case d.queue <- alert:
		return true
	default:
		metrics.AlertsDropped.Inc()
		d.logger.Error("dispatch queue full, alert dropped", "app_id", alert.AppID, "alert_id", alert.ID)
		d.emit(context.Background(), domain.ActivityEvent{
			Type:    domain.ActivityPresentationFailed,
			AppID:   alert.AppID,
			Message: "dispatch queue full",
			Fields:  map[string]string{"alert_id": alert.ID},
		})
		return false
	}
}

// Run presents queued alerts until ctx ends. A presentation in progress when
// ctx ends runs to completion under its own timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case alert := <-d.queue:
			_ = d.Present(context.WithoutCancel(ctx), alert)
		}
	}
}

// Present walks the channel chain once for alert.
func (d *Dispatcher) Present(ctx context.Context, alert domain.Alert) error {
	var errs []error
	for _, ch := range d.channels {
		if !ch.presenter.Supports(alert.Kind) {
			continue
		}
		err := d.attempt(ctx, ch, alert)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}

	if alert.Kind != domain.PayloadText {
		degraded := alert.AsText()
		for _, ch := range d.channels {
			if !ch.presenter.Supports(domain.PayloadText) {
				continue
			}
			err := d.attempt(ctx, ch, degraded)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
	}

	metrics.AlertsDropped.Inc()
	err := fmt.Errorf("%w: no channel delivered alert for %s", domain.ErrPresentationFailure, alert.AppID)
	if len(errs) > 0 {
		err = fmt.Errorf("%w: %w", err, errors.Join(errs...))
	}
	d.logger.Error("alert not delivered", "app_id", alert.AppID, "alert_id", alert.ID, "error", err)
	return err
}

func (d *Dispatcher) attempt(ctx context.Context, ch channel, alert domain.Alert) error {
	name := ch.presenter.Name()
	_, err := ch.breaker.Execute(func() (interface{}, error) {
		presentCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return nil, ch.presenter.Present(presentCtx, alert)
	})
	if err != nil {
		metrics.PresentationFailures.WithLabelValues(name).Inc()
		d.logger.Warn("presentation failed", "channel", name, "app_id", alert.AppID, "kind", string(alert.Kind), "error", err)
		d.emit(ctx, domain.ActivityEvent{
			Type:    domain.ActivityPresentationFailed,
			AppID:   alert.AppID,
			Message: err.Error(),
			Fields:  map[string]string{"channel": name, "alert_id": alert.ID, "kind": string(alert.Kind)},
		})
		return fmt.Errorf("%s: %w", name, err)
	}

	metrics.AlertsTotal.WithLabelValues(name).Inc()
	d.logger.Info("alert presented", "channel", name, "app_id", alert.AppID, "kind", string(alert.Kind))
	d.emit(ctx, domain.ActivityEvent{
		Type:    domain.ActivityAlertDispatched,
		AppID:   alert.AppID,
		Message: alert.Message,
		Fields: map[string]string{
			"channel":   name,
			"alert_id":  alert.ID,
			"kind":      string(alert.Kind),
			"elapsed":   alert.Elapsed.Round(time.Second).String(),
			"threshold": alert.Threshold.String(),
		},
	})
	return nil
}

func (d *Dispatcher) emit(ctx context.Context, event domain.ActivityEvent) {
	if d.record != nil {
		d.record(ctx, event)
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
