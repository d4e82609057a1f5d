package calendarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	googleEventsURL = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

	httpClientTimeout = 5 * time.Second
)

type eventPayload struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Start       eventDateTime `json:"start"`
	End         eventDateTime `json:"end"`
}

type eventDateTime struct {
	DateTime string `json:"dateTime"`
}

type eventResponse struct {
	ID string `json:"id"`
}

type httpCalendarClient struct {
	eventsURL string
}

func NewHTTPClient() *httpCalendarClient {
	return &httpCalendarClient{
		eventsURL: googleEventsURL,
	}
}

func (cc httpCalendarClient) Insert(c context.Context, accessToken string, event EventRequest) (string, error) {
	httpStatus, respBody, err := cc.send(c, http.MethodPost, cc.eventsURL, accessToken, event)
	if err != nil {
		return "", err
	}
	if httpStatus != 200 {
		return "", fmt.Errorf("error creating calendar event: http status %d", httpStatus)
	}

	resp := eventResponse{}
	err = json.Unmarshal(respBody, &resp)
	if err != nil {
		return "", fmt.Errorf("error parsing calendar response: %s", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("calendar response carried no event id")
	}

	return resp.ID, nil
}

func (cc httpCalendarClient) Update(c context.Context, accessToken string, eventID string, event EventRequest) error {
	httpStatus, _, err := cc.send(c, http.MethodPut, cc.eventsURL+"/"+eventID, accessToken, event)
	if err != nil {
		return err
	}
	if httpStatus != 200 {
		return fmt.Errorf("error updating calendar event %s: http status %d", eventID, httpStatus)
	}

	return nil
}

func (cc httpCalendarClient) Delete(c context.Context, accessToken string, eventID string) error {
	httpReq, err := http.NewRequestWithContext(c, http.MethodDelete, cc.eventsURL+"/"+eventID, nil)
	if err != nil {
		return fmt.Errorf("error creating http request: %s", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	httpClient := &http.Client{
		Timeout: httpClientTimeout,
	}
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("error deleting calendar event %s: %s", eventID, err)
	}
	defer httpResp.Body.Close()

	// 410 means the event is already gone
	if httpResp.StatusCode != 200 && httpResp.StatusCode != 204 && httpResp.StatusCode != 410 {
		return fmt.Errorf("error deleting calendar event %s: http status %d", eventID, httpResp.StatusCode)
	}

	return nil
}

func (cc httpCalendarClient) send(c context.Context, method string, url string, accessToken string, event EventRequest) (int, []byte, error) {
	payload, err := json.Marshal(eventPayload{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       eventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         eventDateTime{DateTime: event.End.Format(time.RFC3339)},
	})
	if err != nil {
		return 0, []byte{}, fmt.Errorf("error marshalling calendar event: %s", err)
	}

	httpReq, err := http.NewRequestWithContext(c, method, url, bytes.NewReader(payload))
	if err != nil {
		return 0, []byte{}, fmt.Errorf("error creating http request for %s %s: %s", method, url, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpClient := &http.Client{
		Timeout: httpClientTimeout,
	}
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return 0, []byte{}, fmt.Errorf("error calling %s %s: %s", method, url, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, []byte{}, fmt.Errorf("error reading response of %s %s: %s", method, url, err)
	}

	return httpResp.StatusCode, respBody, nil
}
