package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/apmec/internal/activity"
	"github.com/edvin/apmec/internal/model"
)

// CreateMECAWorkflow instantiates every constituent application of a chain
// in sequence. A constituent failure tears the already-created ones down
// again and marks the chain ERROR.
func CreateMECAWorkflow(ctx workflow.Context, mecaID string) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var plan activity.ChainPlan
	err := workflow.ExecuteActivity(ctx, "GetChainPlan", mecaID).Get(ctx, &plan)
	if err != nil {
		_ = failChain(ctx, mecaID, err)
		return err
	}

	// A backend create is not idempotent, so constituents run with a
	// single attempt and a budget wide enough for the stack to settle.
	createCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	meaIDs := make(map[string]string, len(plan.Constituents))
	mgmtURLs := make(map[string]string, len(plan.Constituents))
	for _, constituent := range plan.Constituents {
		var result activity.ChainConstituentResult
		err = workflow.ExecuteActivity(createCtx, "CreateChainConstituent", activity.CreateChainConstituentParams{
			TenantID:  plan.MECA.TenantID,
			ChainID:   mecaID,
			ChainName: plan.MECA.Name,
			MEADName:  constituent.MEADName,
			MEADID:    constituent.MEADID,
			VIMID:     plan.MECA.VIMID,
		}).Get(createCtx, &result)
		if err != nil {
			// Compensate: remove what already came up.
			for _, meaID := range meaIDs {
				_ = workflow.ExecuteActivity(createCtx, "DeleteChainConstituent", meaID).Get(createCtx, nil)
			}
			_ = failChain(ctx, mecaID, err)
			return err
		}
		meaIDs[constituent.MEADName] = result.MEAID
		if result.MgmtURL != "" {
			mgmtURLs[constituent.MEADName] = result.MgmtURL
		}
	}

	err = workflow.ExecuteActivity(ctx, "StoreChainConstituents", activity.StoreChainConstituentsParams{
		ChainID:  mecaID,
		MEAIDs:   meaIDs,
		MgmtURLs: mgmtURLs,
	}).Get(ctx, nil)
	if err != nil {
		_ = failChain(ctx, mecaID, err)
		return err
	}

	return workflow.ExecuteActivity(ctx, "CompleteChain", mecaID).Get(ctx, nil)
}

// DeleteMECAWorkflow tears every constituent down and soft-deletes the chain
// row. The service has already moved the chain to PENDING_DELETE.
func DeleteMECAWorkflow(ctx workflow.Context, mecaID string) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var meca model.MECA
	err := workflow.ExecuteActivity(ctx, "GetChainByID", mecaID).Get(ctx, &meca)
	if err != nil {
		_ = failChain(ctx, mecaID, err)
		return err
	}

	deleteCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	for _, meaID := range meca.MEAIDs {
		if err := workflow.ExecuteActivity(deleteCtx, "DeleteChainConstituent", meaID).Get(deleteCtx, nil); err != nil {
			_ = failChain(ctx, mecaID, err)
			return err
		}
	}

	return workflow.ExecuteActivity(ctx, "FinalizeChainDelete", mecaID).Get(ctx, nil)
}

// failChain records the failure on the chain row. Callers ignore the
// returned error since the primary error matters more.
func failChain(ctx workflow.Context, mecaID string, cause error) error {
	return workflow.ExecuteActivity(ctx, "FailChain", activity.FailChainParams{
		ChainID: mecaID,
		Reason:  cause.Error(),
	}).Get(ctx, nil)
}
