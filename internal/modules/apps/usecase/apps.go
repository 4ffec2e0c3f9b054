package usecase

import (
	"context"

	appsdto "appguard/internal/modules/apps/dto"
	appsin "appguard/internal/modules/apps/port/in"
	appsout "appguard/internal/modules/apps/port/out"
)

type Interactor struct {
	directory appsout.Directory
}

func NewInteractor(directory appsout.Directory) appsin.Usecase {
	return &Interactor{directory: directory}
}

func (i *Interactor) List(ctx context.Context) ([]appsdto.AppOutput, error) {
	apps, err := i.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]appsdto.AppOutput, 0, len(apps))
	for _, app := range apps {
		out = append(out, appsdto.AppOutput{ID: app.ID, Name: app.Name, Exec: app.Exec, Icon: app.Icon})
	}
	return out, nil
}

func (i *Interactor) Names(ctx context.Context) (map[string]string, error) {
	apps, err := i.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(apps))
	for _, app := range apps {
		names[app.ID] = app.Name
	}
	return names, nil
}
