package runner

import (
	"context"
	"fmt"

	"github.com/metricbridge/core/pkg/logger"
	"github.com/metricbridge/core/pkg/models"
	"github.com/metricbridge/core/pkg/services"
)

// TransferRunner performs one job's work: extract report data from the source
// profile and upload it to the destination profile.
type TransferRunner struct {
	source *services.SourceClient
	dest   *services.DestinationClient
	logger *logger.Logger
}

func NewTransferRunner(source *services.SourceClient, dest *services.DestinationClient) *TransferRunner {
	return &TransferRunner{
		source: source,
		dest:   dest,
		logger: logger.New("transfer-runner"),
	}
}

func (r *TransferRunner) Run(ctx context.Context, job *models.Job) Outcome {
	log := r.logger.WithJob(job.ID.String(), job.Slug)

	data, err := r.source.ExtractReport(ctx, job.SourceProfileID, job.Config, job.IncludePreviousData)
	if err != nil {
		log.Error().
			Err(err).
			Str("source_profile_id", job.SourceProfileID).
			Str("action", "extract_failed").
			Msg("Report extraction failed")
		return Outcome{Err: fmt.Errorf("extract from source profile %s: %w", job.SourceProfileID, err)}
	}

	log.Debug().
		Int("payload_bytes", len(data)).
		Str("action", "extract_complete").
		Msg("Report extracted")

	if err := r.dest.UploadDataset(ctx, job.DestinationProfileID, job.Slug, data); err != nil {
		log.Error().
			Err(err).
			Str("destination_profile_id", job.DestinationProfileID).
			Str("action", "upload_failed").
			Msg("Dataset upload failed")
		return Outcome{Err: fmt.Errorf("upload to destination profile %s: %w", job.DestinationProfileID, err)}
	}

	return Outcome{}
}
