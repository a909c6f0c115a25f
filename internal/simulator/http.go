package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON fetches url and decodes a 200 response into v.
func (c *HTTPClient) getJSON(ctx context.Context, url string, v any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	return json.Unmarshal(body, v)
}

type submitResult int

const (
	resultQueued submitResult = iota
	resultDuplicate
	resultFailed
)

// submitEvents submits outcomes concurrently using a worker pool.
func submitEvents(ctx context.Context, config *Config, events []Outcome, stats *Stats) error {
	log.Printf("📤 Submitting %d outcomes with %d workers...", len(events), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/outcomes"

	var queued, duplicate, failed, retried, submitted atomic.Int64

	eventChan := make(chan Outcome, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range eventChan {
				if ctx.Err() != nil {
					continue
				}
				result, retries := submitSingleEvent(ctx, client, url, event)
				retried.Add(int64(retries))
				switch result {
				case resultQueued:
					queued.Add(1)
				case resultDuplicate:
					duplicate.Add(1)
				case resultFailed:
					failed.Add(1)
				}

				if n := submitted.Add(1); config.Verbose && n%1000 == 0 {
					log.Printf("📊 Progress: %d/%d submitted (queued: %d, duplicate: %d, failed: %d)",
						n, len(events), queued.Load(), duplicate.Load(), failed.Load())
				}
			}
		}()
	}

	go func() {
		defer close(eventChan)
		for _, event := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- event:
			}
		}
	}()

	wg.Wait()

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsQueued = int(queued.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsRetried = int(retried.Load())
	stats.EventsFailed = int(failed.Load())

	log.Printf(`✅ Outcome submission completed:
   Queued: %d
   Duplicate: %d
   Retried: %d
   Failed: %d
`, stats.EventsQueued, stats.EventsDuplicate, stats.EventsRetried, stats.EventsFailed)

	if stats.EventsFailed > 0 {
		return fmt.Errorf("%d outcomes could not be submitted", stats.EventsFailed)
	}
	return ctx.Err()
}

// submitSingleEvent posts one outcome, retrying while the service reports
// backpressure.
func submitSingleEvent(ctx context.Context, client *HTTPClient, url string, event Outcome) (submitResult, int) { //nolint:gocritic // hugeParam
	backoff := submitRetryBackoff
	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		resp, err := client.Post(ctx, url, event)
		if err != nil {
			return resultFailed, attempt
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case StatusAccepted:
			return resultQueued, attempt
		case StatusOK:
			return resultDuplicate, attempt
		case StatusTooManyRequests:
			select {
			case <-ctx.Done():
				return resultFailed, attempt
			case <-time.After(backoff):
			}
			backoff *= 2
		default:
			return resultFailed, attempt
		}
	}
	return resultFailed, maxSubmitAttempts
}
