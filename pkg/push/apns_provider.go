package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"

	"streamchat-backend/pkg/logger"
)

// APNsProvider implements Provider interface for Apple Push Notification Service
type APNsProvider struct {
	client   *apns2.Client
	bundleID string
}

// APNsConfig contains configuration for APNs provider
type APNsConfig struct {
	// Certificate-based authentication (legacy)
	CertificatePath     string
	CertificatePassword string

	// Token-based authentication
	KeyPath string // .p8 private key
	KeyID   string
	TeamID  string

	BundleID   string
	Production bool
}

// NewAPNsProvider creates a new APNs provider. Token authentication is preferred
// when a key is configured.
func NewAPNsProvider(config *APNsConfig) (*APNsProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("APNs config is required")
	}
	if config.BundleID == "" {
		return nil, fmt.Errorf("BundleID is required")
	}

	var client *apns2.Client
	switch {
	case config.KeyPath != "" && config.KeyID != "" && config.TeamID != "":
		authKey, err := token.AuthKeyFromFile(config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs key: %w", err)
		}
		client = apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   config.KeyID,
			TeamID:  config.TeamID,
		})
	case config.CertificatePath != "":
		cert, err := certificate.FromP12File(config.CertificatePath, config.CertificatePassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		client = apns2.NewClient(cert)
	default:
		return nil, fmt.Errorf("either token-based (KeyPath, KeyID, TeamID) or certificate-based (CertificatePath) authentication must be provided")
	}

	if config.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNs provider initialized",
		zap.String("bundle_id", config.BundleID),
		zap.Bool("production", config.Production))

	return &APNsProvider{client: client, bundleID: config.BundleID}, nil
}

// Send implements Provider interface for APNs. APNs has no multicast, so tokens are
// pushed one at a time.
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}

	for _, deviceToken := range tokens {
		p := payload.NewPayload().
			AlertTitle(notification.Title).
			AlertBody(notification.Body)
		if notification.Sound != "" {
			p.Sound(notification.Sound)
		}
		if notification.Category != "" {
			p.Category(notification.Category)
		}
		for key, value := range notification.Data {
			p.Custom(key, value)
		}

		msg := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.bundleID,
			Payload:     p,
			Priority:    apns2.PriorityLow,
		}
		if notification.Priority == "high" {
			msg.Priority = apns2.PriorityHigh
		}

		resp, err := a.client.PushWithContext(ctx, msg)
		if err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			result.SuccessCount++
			continue
		}

		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Errorf("APNs error: %s", resp.Reason))
		if resp.StatusCode == http.StatusGone ||
			resp.Reason == apns2.ReasonUnregistered ||
			resp.Reason == apns2.ReasonBadDeviceToken ||
			resp.Reason == apns2.ReasonDeviceTokenNotForTopic {
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		}

		logger.Warn("APNs notification failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("reason", resp.Reason),
			zap.String("token_prefix", maskPushToken(deviceToken)))
	}

	return result, nil
}
