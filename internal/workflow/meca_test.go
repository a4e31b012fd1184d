package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/apmec/internal/activity"
	"github.com/edvin/apmec/internal/model"
)

// registerActivities registers the activity struct with the test workflow
// environment so parameter and return types deserialize correctly. The
// activities themselves are mocked via OnActivity.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Chain{})
}

func chainPlan(mecaID string, meadNames ...string) *activity.ChainPlan {
	plan := &activity.ChainPlan{
		MECA: model.MECA{
			ID:       mecaID,
			TenantID: "tenant-1",
			Name:     "chain-app",
			MECADID:  "mecad-1",
			VIMID:    "vim-1",
			Status:   model.StatusPendingCreate,
		},
	}
	for _, name := range meadNames {
		plan.Constituents = append(plan.Constituents, activity.ChainConstituent{
			MEADName: name,
			MEADID:   "id-" + name,
		})
	}
	return plan
}

// ---------- CreateMECAWorkflow ----------

type CreateMECAWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *CreateMECAWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *CreateMECAWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *CreateMECAWorkflowTestSuite) TestSuccess() {
	mecaID := "test-meca-1"

	s.env.OnActivity("GetChainPlan", mock.Anything, mecaID).
		Return(chainPlan(mecaID, "mead-a", "mead-b"), nil)
	s.env.OnActivity("CreateChainConstituent", mock.Anything, activity.CreateChainConstituentParams{
		TenantID: "tenant-1", ChainID: mecaID, ChainName: "chain-app",
		MEADName: "mead-a", MEADID: "id-mead-a", VIMID: "vim-1",
	}).Return(&activity.ChainConstituentResult{MEAID: "mea-a", MgmtURL: `{"VDU1":"192.0.2.1"}`}, nil)
	s.env.OnActivity("CreateChainConstituent", mock.Anything, activity.CreateChainConstituentParams{
		TenantID: "tenant-1", ChainID: mecaID, ChainName: "chain-app",
		MEADName: "mead-b", MEADID: "id-mead-b", VIMID: "vim-1",
	}).Return(&activity.ChainConstituentResult{MEAID: "mea-b"}, nil)
	s.env.OnActivity("StoreChainConstituents", mock.Anything, activity.StoreChainConstituentsParams{
		ChainID:  mecaID,
		MEAIDs:   map[string]string{"mead-a": "mea-a", "mead-b": "mea-b"},
		MgmtURLs: map[string]string{"mead-a": `{"VDU1":"192.0.2.1"}`},
	}).Return(nil)
	s.env.OnActivity("CompleteChain", mock.Anything, mecaID).Return(nil)

	s.env.ExecuteWorkflow(CreateMECAWorkflow, mecaID)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *CreateMECAWorkflowTestSuite) TestConstituentFailureCompensates() {
	mecaID := "test-meca-1"

	s.env.OnActivity("GetChainPlan", mock.Anything, mecaID).
		Return(chainPlan(mecaID, "mead-a", "mead-b"), nil)
	s.env.OnActivity("CreateChainConstituent", mock.Anything, mock.MatchedBy(func(p activity.CreateChainConstituentParams) bool {
		return p.MEADName == "mead-a"
	})).Return(&activity.ChainConstituentResult{MEAID: "mea-a"}, nil)
	s.env.OnActivity("CreateChainConstituent", mock.Anything, mock.MatchedBy(func(p activity.CreateChainConstituentParams) bool {
		return p.MEADName == "mead-b"
	})).Return(nil, fmt.Errorf("backend create failed"))

	// The first constituent is torn down again.
	s.env.OnActivity("DeleteChainConstituent", mock.Anything, "mea-a").Return(nil)
	s.env.OnActivity("FailChain", mock.Anything, mock.MatchedBy(func(p activity.FailChainParams) bool {
		return p.ChainID == mecaID && p.Reason != ""
	})).Return(nil)

	s.env.ExecuteWorkflow(CreateMECAWorkflow, mecaID)

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func (s *CreateMECAWorkflowTestSuite) TestPlanFailureMarksError() {
	mecaID := "test-meca-9"

	s.env.OnActivity("GetChainPlan", mock.Anything, mecaID).
		Return(nil, fmt.Errorf("mead mead-a not found"))
	s.env.OnActivity("FailChain", mock.Anything, mock.MatchedBy(func(p activity.FailChainParams) bool {
		return p.ChainID == mecaID
	})).Return(nil)

	s.env.ExecuteWorkflow(CreateMECAWorkflow, mecaID)

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestCreateMECAWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(CreateMECAWorkflowTestSuite))
}

// ---------- DeleteMECAWorkflow ----------

type DeleteMECAWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *DeleteMECAWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *DeleteMECAWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *DeleteMECAWorkflowTestSuite) TestSuccess() {
	mecaID := "test-meca-1"
	meca := model.MECA{
		ID:     mecaID,
		Status: model.StatusPendingDelete,
		MEAIDs: map[string]string{"mead-a": "mea-a"},
	}

	s.env.OnActivity("GetChainByID", mock.Anything, mecaID).Return(&meca, nil)
	s.env.OnActivity("DeleteChainConstituent", mock.Anything, "mea-a").Return(nil)
	s.env.OnActivity("FinalizeChainDelete", mock.Anything, mecaID).Return(nil)

	s.env.ExecuteWorkflow(DeleteMECAWorkflow, mecaID)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *DeleteMECAWorkflowTestSuite) TestConstituentDeleteFailureMarksError() {
	mecaID := "test-meca-1"
	meca := model.MECA{
		ID:     mecaID,
		Status: model.StatusPendingDelete,
		MEAIDs: map[string]string{"mead-a": "mea-a"},
	}

	s.env.OnActivity("GetChainByID", mock.Anything, mecaID).Return(&meca, nil)
	s.env.OnActivity("DeleteChainConstituent", mock.Anything, "mea-a").
		Return(fmt.Errorf("backend delete failed"))
	s.env.OnActivity("FailChain", mock.Anything, mock.MatchedBy(func(p activity.FailChainParams) bool {
		return p.ChainID == mecaID
	})).Return(nil)

	s.env.ExecuteWorkflow(DeleteMECAWorkflow, mecaID)

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestDeleteMECAWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(DeleteMECAWorkflowTestSuite))
}
