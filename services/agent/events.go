package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

// Event interactions
const agentEventsPath = "/v1/events"

// Publish posts a lifecycle event to the controller.
func (a *AgentCommunication) Publish(ctx context.Context, event models.ServiceEvent) error {
	client, _, err := a.Client()
	if err != nil {
		return err
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := a.NewRequest(ctx, http.MethodPost, agentEventsPath, bytes.NewReader(b))
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		rb, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("publish event failed (%d): %s", resp.StatusCode, string(rb))
	}

	return nil
}

// ListEvents returns the events the controller holds for a run.
func (a *AgentCommunication) ListEvents(
	ctx context.Context,
	run uuid.UUID,
	service *string,
) ([]models.ServiceEvent, error) {

	client, baseURL, err := a.Client()
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(baseURL + agentEventsPath)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("run", run.String())
	if service != nil {
		q.Set("service", *service)
	}
	u.RawQuery = q.Encode()

	req, err := a.NewRequest(ctx, http.MethodGet, u.RequestURI(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rb, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list events failed (%d): %s", resp.StatusCode, string(rb))
	}

	var events []models.ServiceEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, err
	}

	return events, nil
}
