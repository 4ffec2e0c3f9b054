package usecase

import (
	"context"
	"time"

	"appguard/internal/modules/monitor/domain"
	"appguard/internal/modules/monitor/dto"
	monitorin "appguard/internal/modules/monitor/port/in"
	monitorout "appguard/internal/modules/monitor/port/out"
)

type servicePort interface {
	RunDaemon(ctx context.Context) error
	StartDaemon(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	DaemonStatus(ctx context.Context) (monitorout.DaemonRuntimeStatus, error)
	DaemonLogs(ctx context.Context, tail int) (string, error)
	Resume(ctx context.Context) error
	ActivityTail(ctx context.Context, query monitorout.ActivityQuery) ([]domain.ActivityEvent, error)
	RecordEvent(ctx context.Context, ev domain.Event) error
}

type Interactor struct {
	svc servicePort
}

func NewInteractor(svc servicePort) monitorin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) RunDaemon(ctx context.Context) error {
	return i.svc.RunDaemon(ctx)
}

func (i *Interactor) StartDaemon(ctx context.Context) error {
	return i.svc.StartDaemon(ctx)
}

func (i *Interactor) StopDaemon(ctx context.Context) error {
	return i.svc.StopDaemon(ctx)
}

func (i *Interactor) DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error) {
	status, err := i.svc.DaemonStatus(ctx)
	if err != nil {
		return dto.DaemonStatusOutput{}, err
	}
	return dto.DaemonStatusOutput{
		Running:    status.Running,
		PID:        status.PID,
		SocketPath: status.SocketPath,
		Status:     mapStatus(status.Status),
	}, nil
}

func (i *Interactor) DaemonLogs(ctx context.Context, tail int) (string, error) {
	return i.svc.DaemonLogs(ctx, tail)
}

func (i *Interactor) Resume(ctx context.Context) error {
	return i.svc.Resume(ctx)
}

func (i *Interactor) ActivityTail(ctx context.Context, since time.Time, limit int) ([]dto.ActivityOutput, error) {
	events, err := i.svc.ActivityTail(ctx, monitorout.ActivityQuery{Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]dto.ActivityOutput, 0, len(events))
	for _, event := range events {
		out = append(out, dto.ActivityOutput{
			ID:         event.ID,
			Type:       string(event.Type),
			AppID:      event.AppID,
			Message:    event.Message,
			Fields:     event.Fields,
			OccurredAt: event.OccurredAt,
		})
	}
	return out, nil
}

func (i *Interactor) RecordEvent(ctx context.Context, input dto.EventInput) error {
	return i.svc.RecordEvent(ctx, domain.Event{
		AppID: input.AppID,
		Kind:  domain.EventKind(input.Kind),
		At:    input.At,
	})
}

func mapStatus(status monitorout.LoopStatus) dto.StatusOutput {
	sessions := make([]dto.SessionOutput, 0, len(status.Sessions))
	for _, sess := range status.Sessions {
		sessions = append(sessions, dto.SessionOutput{
			AppID:     sess.AppID,
			StartedAt: sess.StartedAt,
			State:     string(sess.State()),
		})
	}
	return dto.StatusOutput{
		State:      string(status.State),
		Cursor:     status.Cursor,
		LastTickAt: status.LastTickAt,
		Ticks:      status.Ticks,
		LastError:  status.LastError,
		Monitored:  status.Monitored,
		Sessions:   sessions,
		Restarts:   status.Restarts,
		StartedAt:  status.StartedAt,
		HTTPAddr:   status.HTTPAddr,
	}
}
