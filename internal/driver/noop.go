package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/platform"
)

// NoopInfra tracks instances in memory and provisions nothing. Used for
// development and tests.
type NoopInfra struct {
	mu        sync.Mutex
	instances map[string]struct{}
}

func NewNoopInfra() *NoopInfra {
	return &NoopInfra{instances: make(map[string]struct{})}
}

func (d *NoopInfra) Type() string { return "noop" }

func (d *NoopInfra) Create(ctx context.Context, auth model.VIMAuth, spec CreateSpec) (string, error) {
	id := platform.NewID()
	d.mu.Lock()
	d.instances[id] = struct{}{}
	d.mu.Unlock()
	return id, nil
}

func (d *NoopInfra) CreateWait(ctx context.Context, auth model.VIMAuth, instanceID string) (string, error) {
	if err := d.check(instanceID); err != nil {
		return "", err
	}
	return `{"VDU1": "192.0.2.1"}`, nil
}

func (d *NoopInfra) Update(ctx context.Context, auth model.VIMAuth, instanceID string, spec CreateSpec) error {
	return d.check(instanceID)
}

func (d *NoopInfra) UpdateWait(ctx context.Context, auth model.VIMAuth, instanceID string) (string, error) {
	if err := d.check(instanceID); err != nil {
		return "", err
	}
	return `{"VDU1": "192.0.2.1"}`, nil
}

func (d *NoopInfra) Delete(ctx context.Context, auth model.VIMAuth, instanceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.instances[instanceID]; !ok {
		return fmt.Errorf("noop: no instance %s", instanceID)
	}
	delete(d.instances, instanceID)
	return nil
}

func (d *NoopInfra) DeleteWait(ctx context.Context, auth model.VIMAuth, instanceID string) error {
	return nil
}

func (d *NoopInfra) Scale(ctx context.Context, auth model.VIMAuth, instanceID, policy, scaleType string) (string, error) {
	if err := d.check(instanceID); err != nil {
		return "", err
	}
	return platform.NewID(), nil
}

func (d *NoopInfra) ScaleWait(ctx context.Context, auth model.VIMAuth, instanceID, resourceID string) (string, error) {
	if err := d.check(instanceID); err != nil {
		return "", err
	}
	return `{"VDU1": "192.0.2.1"}`, nil
}

func (d *NoopInfra) GetResourceInfo(ctx context.Context, auth model.VIMAuth, instanceID string) ([]Resource, error) {
	if err := d.check(instanceID); err != nil {
		return nil, err
	}
	return []Resource{{Name: "noop", Type: "noop", ID: platform.NewID()}}, nil
}

func (d *NoopInfra) check(instanceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.instances[instanceID]; !ok {
		return fmt.Errorf("noop: no instance %s", instanceID)
	}
	return nil
}

// NoopMgmt accepts every lifecycle hook without doing anything.
type NoopMgmt struct{}

func (NoopMgmt) Type() string                                        { return "noop" }
func (NoopMgmt) CreatePre(ctx context.Context, mea *model.MEA) error  { return nil }
func (NoopMgmt) CreatePost(ctx context.Context, mea *model.MEA) error { return nil }
func (NoopMgmt) UpdatePre(ctx context.Context, mea *model.MEA) error  { return nil }
func (NoopMgmt) UpdatePost(ctx context.Context, mea *model.MEA) error { return nil }
func (NoopMgmt) DeletePre(ctx context.Context, mea *model.MEA) error  { return nil }
func (NoopMgmt) DeletePost(ctx context.Context, mea *model.MEA) error { return nil }
