package core

import (
	"context"
	"fmt"

	"brewcore/pkg/domain"
)

// NewVesselOccupancyRule blocks vessels held by stages that are not active and
// stages that claim a vessel occupied by someone else.
func NewVesselOccupancyRule() domain.Rule {
	return vesselOccupancyRule{}
}

type vesselOccupancyRule struct{}

func (vesselOccupancyRule) Name() string { return "vessel_occupancy" }

func (vesselOccupancyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, vessel := range view.ListVessels() {
		if vessel.Status != domain.VesselStatusOccupied {
			continue
		}
		if vessel.BatchID == nil || vessel.BatchStageID == nil {
			res.Violations = append(res.Violations, violation("vessel_occupancy", domain.EntityVessel, vessel.ID,
				fmt.Sprintf("vessel %s (%s) is occupied without a batch stage", vessel.Name, vessel.ID)))
			continue
		}
		batch, ok := view.FindBatch(*vessel.BatchID)
		if !ok {
			continue
		}
		stage, _, ok := batch.Stage(*vessel.BatchStageID)
		if !ok || stage.Status != domain.StageStatusActive || batch.Status == domain.BatchStatusAbandoned {
			res.Violations = append(res.Violations, violation("vessel_occupancy", domain.EntityVessel, vessel.ID,
				fmt.Sprintf("vessel %s (%s) is held by a stage that is not active", vessel.Name, vessel.ID)))
		}
	}
	return res, nil
}
