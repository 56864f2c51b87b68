package workflow

import "bitbucket.org/mmdatafocus/coordinator_backend/models"

type CreateRequest struct {
	OasysAssessmentPk         string             `json:"oasysAssessmentPk" validate:"required,max=15"`
	RegionPrisonCode          *string            `json:"regionPrisonCode,omitempty" validate:"omitempty,max=64"`
	PreviousOasysAssessmentPk *string            `json:"previousOasysAssessmentPk,omitempty" validate:"omitempty,max=15"`
	PlanType                  string             `json:"planType,omitempty" validate:"omitempty,oneof=INITIAL REVIEW"`
	UserDetails               models.UserDetails `json:"userDetails"`
}

type SignRequest struct {
	SignType    models.SignType    `json:"signType" validate:"required,oneof=SELF COUNTERSIGN"`
	UserDetails models.UserDetails `json:"userDetails"`
}

type CounterSignRequest struct {
	AssessmentVersion   int64               `json:"sanVersionNumber" validate:"min=0"`
	SentencePlanVersion int64               `json:"sentencePlanVersionNumber" validate:"min=0"`
	Outcome             models.VersionEvent `json:"outcome" validate:"required"`
	UserDetails         models.UserDetails  `json:"userDetails"`
}

type LockRequest struct {
	UserDetails models.UserDetails `json:"userDetails"`
}

// RollbackRequest names the target version per side; a nil side is left alone.
type RollbackRequest struct {
	AssessmentVersion   *int64             `json:"sanVersionNumber,omitempty" validate:"omitempty,min=0"`
	SentencePlanVersion *int64             `json:"sentencePlanVersionNumber,omitempty" validate:"omitempty,min=0"`
	UserDetails         models.UserDetails `json:"userDetails"`
}

type SoftDeleteRequest struct {
	UserDetails models.UserDetails `json:"userDetails"`
}

type UndeleteRequest struct {
	UserDetails models.UserDetails `json:"userDetails"`
}

type MergePair struct {
	OldOasysAssessmentPk string `json:"oldOasysAssessmentPK" validate:"required,max=15"`
	NewOasysAssessmentPk string `json:"newOasysAssessmentPK" validate:"required,max=15"`
}

type MergeRequest struct {
	Merge       []MergePair        `json:"merge" validate:"required,min=1,dive"`
	UserDetails models.UserDetails `json:"userDetails"`
}

type MergeResult struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Moved int64  `json:"moved"`
}
