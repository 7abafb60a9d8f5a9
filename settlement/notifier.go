// Package settlement tells an external payout system that a hunt was won.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"zkml-orchestrator/core/monitoring"

	log "github.com/sirupsen/logrus"
)

// Notifier reports a verified win; the bool is whether the payout side accepted it
type Notifier interface {
	NotifyWin(ctx context.Context, huntID, winner string, proof []byte) (bool, error)
}

// winPayload is the webhook body
type winPayload struct {
	HuntID string `json:"hunt_id"`
	Winner string `json:"winner"`
	Proof  []int  `json:"proof"`
}

type winResponse struct {
	Awarded bool `json:"awarded"`
}

// HTTPNotifier posts wins to a webhook
type HTTPNotifier struct {
	URL    string
	Client *http.Client
}

// NewHTTPNotifier creates a webhook notifier
func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

// NotifyWin posts {hunt_id, winner, proof}; a 2xx without a body counts as awarded
func (n *HTTPNotifier) NotifyWin(ctx context.Context, huntID, winner string, proof []byte) (bool, error) {
	ints := make([]int, len(proof))
	for i, b := range proof {
		ints[i] = int(b)
	}
	body, err := json.Marshal(winPayload{HuntID: huntID, Winner: winner, Proof: ints})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("posting win for hunt %s: %w", huntID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("settlement webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return true, nil
	}
	var out winResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("decoding settlement response: %w", err)
	}
	return out.Awarded, nil
}

// Dispatch fires NotifyWin in the background and logs the result.
// The returned channel is closed once the notification finishes.
func Dispatch(n Notifier, huntID, winner string, proof []byte, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		logger := log.WithFields(log.Fields{"hunt_id": huntID, "winner": winner})
		awarded, err := n.NotifyWin(ctx, huntID, winner, proof)
		switch {
		case err != nil:
			monitoring.SettlementNotifications.WithLabelValues("error").Inc()
			logger.WithError(err).Error("Settlement notification failed")
		case !awarded:
			monitoring.SettlementNotifications.WithLabelValues("declined").Inc()
			logger.Warn("Settlement declined the win")
		default:
			monitoring.SettlementNotifications.WithLabelValues("awarded").Inc()
			logger.Info("Prize awarded")
		}
	}()
	return done
}
