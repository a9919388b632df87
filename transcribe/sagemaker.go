package transcribe

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"go.uber.org/zap"

	"gallery_style/logging"
)

// endpointInvoker is the slice of the SageMaker runtime client we use.
type endpointInvoker interface {
	InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput,
		optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
}

// SageMakerTranscriber invokes a deployed SageMaker inference endpoint.
type SageMakerTranscriber struct {
	client       endpointInvoker
	endpointName string
	logger       *logging.Logger
}

// SageMakerConfig selects the endpoint. Credentials come from the default
// AWS chain (environment, shared config, instance role).
type SageMakerConfig struct {
	EndpointName string
	Region       string
	MaxAttempts  int
}

// NewSageMakerTranscriber loads AWS configuration for cfg.Region and builds
// a runtime client that retries up to cfg.MaxAttempts times.
func NewSageMakerTranscriber(ctx context.Context, cfg SageMakerConfig, logger *logging.Logger) (*SageMakerTranscriber, error) {
	if cfg.EndpointName == "" {
		return nil, fmt.Errorf("%w: sagemaker endpoint name is required", ErrMissingEndpoint)
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load AWS config: %w", err)
	}
	return newSageMakerTranscriber(sagemakerruntime.NewFromConfig(awsCfg), cfg.EndpointName, logger), nil
}

func newSageMakerTranscriber(client endpointInvoker, endpointName string, logger *logging.Logger) *SageMakerTranscriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SageMakerTranscriber{
		client:       client,
		endpointName: endpointName,
		logger:       logger.Named("sagemaker"),
	}
}

func (s *SageMakerTranscriber) Name() string { return "sagemaker" }

func (s *SageMakerTranscriber) Transcribe(ctx context.Context, audio Audio) (*Result, error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	s.logger.Debug("invoking endpoint",
		zap.String("endpoint", s.endpointName),
		zap.Int("bytes", len(audio.Data)))

	out, err := s.client.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(s.endpointName),
		ContentType:  aws.String(ContentType),
		Body:         audio.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invoke %s: %v", ErrEndpointRequest, s.endpointName, err)
	}
	s.logger.Debug("endpoint responded",
		zap.String("variant", aws.ToString(out.InvokedProductionVariant)),
		zap.String("content_type", aws.ToString(out.ContentType)))
	return ParseResponse(out.Body)
}
