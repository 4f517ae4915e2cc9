package awsbatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"

	"github.com/untruncd/untruncd/src/internal/domain"
)

// Submitter hands sized repair jobs to AWS Batch. The worker container
// reads its manifest from environment variables; the engine never polls
// the submitted job.
type Submitter struct {
	client           *batch.Client
	jobQueueARN      string
	jobDefinitionARN string
}

func New(client *batch.Client, jobQueueARN, jobDefinitionARN string) *Submitter {
	return &Submitter{
		client:           client,
		jobQueueARN:      jobQueueARN,
		jobDefinitionARN: jobDefinitionARN,
	}
}

func (s *Submitter) Submit(ctx context.Context, spec *domain.BatchJobSpec) (string, error) {
	repairKeys, err := json.Marshal(spec.RepairKeys)
	if err != nil {
		return "", fmt.Errorf("failed to encode repair keys: %w", err)
	}

	env := []types.KeyValuePair{
		{Name: aws.String("INPUT_BUCKET"), Value: aws.String(spec.InputBucket)},
		{Name: aws.String("INPUT_PREFIX"), Value: aws.String(spec.InputPrefix)},
		{Name: aws.String("OUTPUT_BUCKET"), Value: aws.String(spec.OutputBucket)},
		{Name: aws.String("OUTPUT_PREFIX"), Value: aws.String(spec.OutputPrefix)},
		{Name: aws.String("REFERENCE_KEY"), Value: aws.String(spec.ReferenceKey)},
		{Name: aws.String("FILES_TO_REPAIR"), Value: aws.String(string(repairKeys))},
		{Name: aws.String("JOB_ID"), Value: aws.String(spec.JobName)},
		// Scratch-space sizing travels as an env var; the job definition
		// owns the actual ephemeral storage setting.
		{Name: aws.String("STORAGE_GB"), Value: aws.String(strconv.Itoa(int(spec.Resources.StorageGB)))},
	}

	input := &batch.SubmitJobInput{
		JobName:       aws.String(spec.JobName),
		JobQueue:      aws.String(s.jobQueueARN),
		JobDefinition: aws.String(s.jobDefinitionARN),
		ContainerOverrides: &types.ContainerOverrides{
			Environment: env,
			ResourceRequirements: []types.ResourceRequirement{
				{Type: types.ResourceTypeVcpu, Value: aws.String(spec.Resources.VCPU)},
				{Type: types.ResourceTypeMemory, Value: aws.String(strconv.Itoa(int(spec.Resources.MemoryMB)))},
			},
		},
	}

	resp, err := s.client.SubmitJob(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to submit batch job: %w", err)
	}
	return aws.ToString(resp.JobId), nil
}
