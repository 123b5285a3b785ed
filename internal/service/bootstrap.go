package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"vizboard/dashboard/internal/model"
)

// Bootstrapper makes sure the required storage containers exist and are
// writable before a transfer starts. It treats the containers as external
// preconditions, not owned resources.
type Bootstrapper struct {
	storage   ObjectStorage
	provision ProvisionClient // optional privileged provisioning call
}

func NewBootstrapper(storage ObjectStorage, provision ProvisionClient) *Bootstrapper {
	return &Bootstrapper{storage: storage, provision: provision}
}

// EnsureContainers runs the bootstrap cascade until one strategy leaves all
// required containers verifiably present. Every strategy is re-verified with
// a subsequent list call. When the whole cascade fails the report comes back
// degraded instead of blocking ingestion: some environments report false
// negatives on listing permissions while uploads still succeed.
func (b *Bootstrapper) EnsureContainers(ctx context.Context, required []string) model.BootstrapReport {
	report := model.BootstrapReport{CheckedAt: time.Now()}

	winner, err := RunCascade(ctx, "storage bootstrap", []Strategy{
		{Name: "server_provision", Attempt: func(ctx context.Context) error {
			return b.provisionContainers(ctx, required)
		}},
		{Name: "list_create", Attempt: func(ctx context.Context) error {
			return b.createMissing(ctx, required, false)
		}},
		{Name: "create_public_policy", Attempt: func(ctx context.Context) error {
			return b.createWithPolicy(ctx, required)
		}},
		{Name: "force_recreate", Attempt: func(ctx context.Context) error {
			return b.forceRecreate(ctx, required)
		}},
	})

	if err != nil {
		missing, listErr := b.missingContainers(ctx, required)
		if listErr != nil {
			missing = required
		}
		report.Missing = missing
		report.Degraded = len(missing) > 0
		if report.Degraded {
			log.Printf("storage bootstrap degraded, missing containers: %v", missing)
		}
		return report
	}

	report.Strategy = winner
	return report
}

func (b *Bootstrapper) provisionContainers(ctx context.Context, required []string) error {
	if b.provision == nil {
		return fmt.Errorf("no provisioning client configured")
	}
	missing, err := b.missingContainers(ctx, required)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	if err := b.provision.ProvisionContainers(ctx, missing); err != nil {
		return err
	}
	return b.verify(ctx, required)
}

func (b *Bootstrapper) createMissing(ctx context.Context, required []string, publicPolicy bool) error {
	missing, err := b.missingContainers(ctx, required)
	if err != nil {
		return err
	}
	for _, name := range missing {
		if err := b.storage.CreateContainer(ctx, name, publicPolicy); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	return b.verify(ctx, required)
}

func (b *Bootstrapper) createWithPolicy(ctx context.Context, required []string) error {
	missing, err := b.missingContainers(ctx, required)
	if err != nil {
		return err
	}
	for _, name := range missing {
		if err := b.storage.CreateContainer(ctx, name, true); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := b.storage.GrantPublicPolicy(ctx, name); err != nil {
			return fmt.Errorf("grant policy %s: %w", name, err)
		}
	}
	return b.verify(ctx, required)
}

// forceRecreate deletes and recreates containers whose state is
// inconsistent. Last resort: it is destructive for the named container.
func (b *Bootstrapper) forceRecreate(ctx context.Context, required []string) error {
	missing, err := b.missingContainers(ctx, required)
	if err != nil {
		return err
	}
	for _, name := range missing {
		if err := b.storage.DeleteContainer(ctx, name); err != nil {
			log.Printf("storage bootstrap: delete %s before recreate: %v", name, err)
		}
		if err := b.storage.CreateContainer(ctx, name, true); err != nil {
			return fmt.Errorf("recreate %s: %w", name, err)
		}
		if err := b.storage.GrantPublicPolicy(ctx, name); err != nil {
			return fmt.Errorf("grant policy %s: %w", name, err)
		}
	}
	return b.verify(ctx, required)
}

func (b *Bootstrapper) missingContainers(ctx context.Context, required []string) ([]string, error) {
	existing, err := b.storage.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}
	var missing []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// verify re-lists after a strategy claims success. Trust but verify.
func (b *Bootstrapper) verify(ctx context.Context, required []string) error {
	missing, err := b.missingContainers(ctx, required)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("containers still missing after create: %v", missing)
	}
	return nil
}
