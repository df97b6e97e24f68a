package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/observability"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

const ResultEventName = "batch.result"

// EventPublisher delivers one event to the downstream consumer.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) (string, error)
}

// ResultNotification is the flat record sent downstream for a first submission.
type ResultNotification struct {
	InputID       int64   `json:"inputId"`
	BatchID       string  `json:"batchId"`
	OutputID      int64   `json:"outputId"`
	DeploymentID  string  `json:"deploymentId"`
	Email         string  `json:"email"`
	FullName      string  `json:"fullName"`
	Location      string  `json:"location"`
	TeamName      string  `json:"teamName"`
	CompanyName   string  `json:"companyName"`
	CountryCode   string  `json:"countryCode"`
	ContainerID   string  `json:"containerId"`
	ClientVersion string  `json:"clientVersion"`
	TICID         string  `json:"ticId"`
	Sector        int     `json:"sector"`
	Camera        int     `json:"camera"`
	CCD           int     `json:"ccd"`
	RA            float64 `json:"ra"`
	Dec           float64 `json:"dec"`
	TMag          float64 `json:"tmag"`
	TPF           string  `json:"tpf"`
	LC            string  `json:"lc"`
	Per           string  `json:"per"`
	IsPlanet      float64 `json:"isPlanet"`
	IsNotPlanet   float64 `json:"isNotPlanet"`
	TotalScore    int     `json:"totalScore"`
}

type NotificationConfig struct {
	DeploymentID string
	// Timeout bounds the whole delivery including retries.
	Timeout time.Duration
}

// NotificationDispatcher emits one event per completed result. Delivery
// failures are logged and never returned.
type NotificationDispatcher interface {
	Notify(ctx context.Context, input *types.Input, client *types.Client, result *types.Result)
}

type notificationDispatcher struct {
	log          *logger.Logger
	publisher    EventPublisher
	uris         URIResolver
	metrics      *observability.Metrics
	deploymentID string
	timeout      time.Duration
	newBackoff   func() backoff.BackOff
}

// NewNotificationDispatcher returns a dispatcher; a nil publisher disables delivery.
func NewNotificationDispatcher(log *logger.Logger, publisher EventPublisher, uris URIResolver, metrics *observability.Metrics, cfg NotificationConfig) NotificationDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &notificationDispatcher{
		log:          log.With("service", "NotificationDispatcher"),
		publisher:    publisher,
		uris:         uris,
		metrics:      metrics,
		deploymentID: cfg.DeploymentID,
		timeout:      timeout,
		newBackoff:   newNotifyBackoff,
	}
}

func newNotifyBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, 3)
}

func (d *notificationDispatcher) buildPayload(input *types.Input, client *types.Client, result *types.Result) ResultNotification {
	n := ResultNotification{
		InputID:       input.ID,
		OutputID:      result.ID,
		DeploymentID:  d.deploymentID,
		Email:         client.Email,
		FullName:      client.FullName,
		Location:      client.Location,
		TeamName:      client.TeamName,
		CompanyName:   client.CompanyName,
		CountryCode:   client.CountryCode,
		ContainerID:   result.ContainerID,
		ClientVersion: result.ClientVersion,
		TICID:         result.TICID,
		Sector:        result.Sector,
		Camera:        result.Camera,
		CCD:           result.CCD,
		RA:            result.RA,
		Dec:           result.Dec,
		TMag:          result.TMag,
		LC:            result.ResultKey,
		Per:           joinFrequencies(result.Frequencies),
		IsPlanet:      result.IsPlanet,
		IsNotPlanet:   result.IsNotPlanet,
		TotalScore:    types.OutputContent{IsPlanet: result.IsPlanet, IsNotPlanet: result.IsNotPlanet}.TotalScore(),
	}
	if input.BatchLabel != nil {
		n.BatchID = input.BatchLabel.String()
	}
	if d.uris != nil {
		n.TPF = d.uris.ResolveReadURI(input.StorageKey)
	}
	return n
}

// joinFrequencies renders periods as a ";"-separated list, e.g. "0.5;1.25".
func joinFrequencies(freqs []float64) string {
	parts := make([]string, len(freqs))
	for i, f := range freqs {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ";")
}

func (d *notificationDispatcher) Notify(ctx context.Context, input *types.Input, client *types.Client, result *types.Result) {
	if input == nil || client == nil || result == nil {
		return
	}
	payload := d.buildPayload(input, client, result)
	if d.publisher == nil {
		d.metrics.IncNotification("disabled")
		d.log.Warn("Notifications disabled; result event dropped", "input_id", payload.InputID, "output_id", payload.OutputID, "total_score", payload.TotalScore)
		return
	}

	// Detached from request cancellation so a client disconnect does not drop the event.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	attempts := 0
	var streamID string
	err := backoff.Retry(func() error {
		attempts++
		id, err := d.publisher.Publish(ctx, ResultEventName, payload)
		if err != nil {
			return err
		}
		streamID = id
		return nil
	}, backoff.WithContext(d.newBackoff(), ctx))
	if err != nil {
		d.metrics.IncNotification("failed")
		d.log.Error("Result notification failed", "input_id", payload.InputID, "output_id", payload.OutputID, "attempts", attempts, "error", err)
		return
	}
	d.metrics.IncNotification("sent")
	d.log.Debug("Result notification sent", "input_id", payload.InputID, "stream_id", streamID, "attempts", attempts)
}
