package activity

import (
	"context"
	"fmt"

	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/platform"
)

// Chain contains the activities the MECA workflows run: constituent
// instantiation and teardown through the instance service, plus chain row
// bookkeeping.
type Chain struct {
	meas   *core.MEAService
	mecas  *core.MECAService
	mecads *core.MECADService
	meads  *core.MEADService
}

// NewChain creates a new Chain activity struct.
func NewChain(services *core.Services) *Chain {
	return &Chain{
		meas:   services.MEA,
		mecas:  services.MECA,
		mecads: services.MECAD,
		meads:  services.MEAD,
	}
}

// ChainConstituent is one constituent application of a chain plan.
type ChainConstituent struct {
	MEADName string
	MEADID   string
}

// ChainPlan is everything the create workflow needs: the chain row and its
// constituent templates resolved by name.
type ChainPlan struct {
	MECA         model.MECA
	Constituents []ChainConstituent
}

// GetChainPlan loads a chain and resolves every constituent template. A
// dangling template name fails the plan before anything is created.
func (a *Chain) GetChainPlan(ctx context.Context, mecaID string) (*ChainPlan, error) {
	meca, err := a.mecas.GetByID(ctx, mecaID)
	if err != nil {
		return nil, err
	}
	mecad, err := a.mecads.GetByID(ctx, meca.MECADID)
	if err != nil {
		return nil, err
	}

	plan := &ChainPlan{MECA: *meca}
	for _, meadName := range mecad.MEADs {
		mead, err := a.meads.GetByName(ctx, meca.TenantID, meadName)
		if err != nil {
			return nil, fmt.Errorf("resolve constituent %s: %w", meadName, err)
		}
		plan.Constituents = append(plan.Constituents, ChainConstituent{
			MEADName: meadName,
			MEADID:   mead.ID,
		})
	}
	return plan, nil
}

// GetChainByID retrieves a chain by its ID.
func (a *Chain) GetChainByID(ctx context.Context, mecaID string) (*model.MECA, error) {
	return a.mecas.GetByID(ctx, mecaID)
}

// CreateChainConstituentParams holds the parameters for CreateChainConstituent.
type CreateChainConstituentParams struct {
	TenantID  string
	ChainID   string
	ChainName string
	MEADName  string
	MEADID    string
	VIMID     string
}

// ChainConstituentResult reports the created instance.
type ChainConstituentResult struct {
	MEAID   string
	MgmtURL string
}

// CreateChainConstituent instantiates one constituent and blocks until the
// backend settles. Not safe to retry; the workflow runs it with a single
// attempt and compensates on failure.
func (a *Chain) CreateChainConstituent(ctx context.Context, params CreateChainConstituentParams) (*ChainConstituentResult, error) {
	mea, err := a.meas.CreateSync(ctx, core.CreateMEARequest{
		TenantID:    params.TenantID,
		Name:        platform.GenerateResourceName(params.ChainName, params.MEADName),
		Description: fmt.Sprintf("constituent of meca %s", params.ChainID),
		MEADID:      params.MEADID,
		VIMID:       params.VIMID,
	})
	if err != nil {
		return nil, fmt.Errorf("create constituent %s: %w", params.MEADName, err)
	}

	result := &ChainConstituentResult{MEAID: mea.ID}
	if mea.MgmtURL != nil {
		result.MgmtURL = *mea.MgmtURL
	}
	return result, nil
}

// DeleteChainConstituent tears one constituent down. Already-gone
// constituents are fine, so delete is usable both for teardown and for
// compensation after a partial create.
func (a *Chain) DeleteChainConstituent(ctx context.Context, meaID string) error {
	if err := a.meas.DeleteSync(ctx, meaID); err != nil && !core.IsNotFound(err) {
		return fmt.Errorf("delete constituent %s: %w", meaID, err)
	}
	return nil
}

// StoreChainConstituentsParams holds the parameters for StoreChainConstituents.
type StoreChainConstituentsParams struct {
	ChainID  string
	MEAIDs   map[string]string
	MgmtURLs map[string]string
}

// StoreChainConstituents records the constituent instance ids and management
// URLs on the chain row.
func (a *Chain) StoreChainConstituents(ctx context.Context, params StoreChainConstituentsParams) error {
	return a.mecas.SetConstituents(ctx, params.ChainID, params.MEAIDs, params.MgmtURLs)
}

// CompleteChain moves the chain to ACTIVE.
func (a *Chain) CompleteChain(ctx context.Context, mecaID string) error {
	return a.mecas.Complete(ctx, mecaID)
}

// FailChainParams holds the parameters for FailChain.
type FailChainParams struct {
	ChainID string
	Reason  string
}

// FailChain marks the chain ERROR with the given reason.
func (a *Chain) FailChain(ctx context.Context, params FailChainParams) error {
	return a.mecas.Fail(ctx, params.ChainID, params.Reason)
}

// FinalizeChainDelete soft-deletes the chain row.
func (a *Chain) FinalizeChainDelete(ctx context.Context, mecaID string) error {
	return a.mecas.FinalizeDelete(ctx, mecaID)
}
